package compress

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		err  bool
	}{
		{"", None, false},
		{"none", None, false},
		{"snappy", Snappy, false},
		{"zstd", Zstd, false},
		{"lz4", None, true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && tt.in != "" && got.String() != tt.in {
			t.Errorf("%v.String() = %q", got, got.String())
		}
	}
}

func TestCodecs(t *testing.T) {
	payload := []byte("MESSAGE=" + string(bytes.Repeat([]byte("the quick brown fox "), 200)))

	for _, alg := range []Algorithm{Snappy, Zstd} {
		t.Run(alg.String(), func(t *testing.T) {
			c, err := For(alg)
			if err != nil {
				t.Fatalf("For(%v): %v", alg, err)
			}
			if c.Algorithm() != alg {
				t.Errorf("Algorithm() = %v", c.Algorithm())
			}

			packed := c.Compress(nil, payload)
			if len(packed) >= len(payload) {
				t.Errorf("compressed %d bytes to %d", len(payload), len(packed))
			}

			out, err := c.Decompress(nil, packed, 0)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("round trip mismatch")
			}

			if _, err := c.Decompress(nil, packed, 100); !errors.Is(err, ErrTooLarge) {
				t.Errorf("limit not enforced: %v", err)
			}
			if _, err := c.Decompress(nil, []byte("garbage!"), 0); err == nil {
				t.Error("garbage decompressed without error")
			}
		})
	}

	if _, err := For(None); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("For(None) error = %v", err)
	}
}
