package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateFieldName(t *testing.T) {
	tests := []struct {
		name      string
		protected bool
		wantErr   error
	}{
		{"MESSAGE", false, nil},
		{"PRIORITY", false, nil},
		{"CODE_LINE2", false, nil},
		{"_BOOT_ID", true, nil},
		{"_BOOT_ID", false, ErrProtectedField},
		{"", false, ErrEmptyFieldName},
		{"2FAST", false, ErrFieldNameDigit},
		{"message", false, ErrFieldNameChars},
		{"MESS AGE", false, ErrFieldNameChars},
		{"MESSAGE=", false, ErrFieldNameChars},
		{strings.Repeat("A", 64), false, nil},
		{strings.Repeat("A", 65), false, ErrFieldNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldName([]byte(tt.name), tt.protected)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateFieldName(%q) = %v, want nil", tt.name, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFieldName(%q) = %v, want %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFieldPayload(t *testing.T) {
	name, err := ValidateFieldPayload([]byte("MESSAGE=hello=world"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(name) != "MESSAGE" {
		t.Errorf("name = %q, want MESSAGE", name)
	}

	if _, err := ValidateFieldPayload([]byte("BINARY=\x00\x01\xff"), false); err != nil {
		t.Errorf("binary values should be accepted: %v", err)
	}
	if _, err := ValidateFieldPayload([]byte("NOVALUE="), false); err != nil {
		t.Errorf("empty values should be accepted: %v", err)
	}
	if _, err := ValidateFieldPayload([]byte("MESSAGE"), false); !errors.Is(err, ErrMissingSeparator) {
		t.Errorf("missing '=' error = %v", err)
	}
	if _, err := ValidateFieldPayload([]byte("=value"), false); !errors.Is(err, ErrEmptyFieldName) {
		t.Errorf("empty name error = %v", err)
	}
}

type structUnderTest struct {
	Directory string `validate:"required"`
	Codec     string `validate:"oneof=none snappy zstd"`
	Buckets   int    `validate:"min=1,max=1000"`
	Match     string `validate:"omitempty,fieldname"`
}

func TestStruct(t *testing.T) {
	ok := structUnderTest{Directory: "/tmp", Codec: "zstd", Buckets: 10, Match: "_SYSTEMD_UNIT"}
	if err := Struct(ok); err != nil {
		t.Errorf("Struct(valid) = %v", err)
	}

	bad := structUnderTest{Codec: "gzip", Buckets: 0, Match: "lower"}
	err := Struct(bad)
	if err == nil {
		t.Fatal("Struct(invalid) = nil")
	}
	for _, want := range []string{"Directory: field is required", "Codec: must be one of", "Buckets: must be at least 1", "not a valid field name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
