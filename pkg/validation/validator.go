package validation

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// MaxFieldNameLength bounds a field name, excluding the '='.
	MaxFieldNameLength = 64
)

var (
	ErrEmptyFieldName   = errors.New("field name is empty")
	ErrFieldNameTooLong = errors.New("field name too long")
	ErrFieldNameChars   = errors.New("field name may only contain A-Z, 0-9 and '_'")
	ErrFieldNameDigit   = errors.New("field name may not start with a digit")
	ErrProtectedField   = errors.New("field name is protected")
	ErrMissingSeparator = errors.New("field payload has no '='")
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
		return ValidateFieldName([]byte(fl.Field().String()), true) == nil
	})
}

// ValidateFieldName checks a field name against the journal naming rules:
// upper-case letters, digits and underscores, not starting with a digit.
// Names starting with '_' are reserved for trusted writers and are rejected
// unless allowProtected is set.
func ValidateFieldName(name []byte, allowProtected bool) error {
	if len(name) == 0 {
		return ErrEmptyFieldName
	}
	if len(name) > MaxFieldNameLength {
		return fmt.Errorf("%w: %d > %d", ErrFieldNameTooLong, len(name), MaxFieldNameLength)
	}
	if name[0] >= '0' && name[0] <= '9' {
		return ErrFieldNameDigit
	}
	if name[0] == '_' && !allowProtected {
		return fmt.Errorf("%w: %s", ErrProtectedField, name)
	}
	for _, c := range name {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			return fmt.Errorf("%w: %q", ErrFieldNameChars, name)
		}
	}
	return nil
}

// ValidateFieldPayload checks a FIELD=value payload and returns the field name.
// The value may hold arbitrary bytes.
func ValidateFieldPayload(payload []byte, allowProtected bool) ([]byte, error) {
	eq := bytes.IndexByte(payload, '=')
	if eq < 0 {
		return nil, ErrMissingSeparator
	}
	name := payload[:eq]
	if err := ValidateFieldName(name, allowProtected); err != nil {
		return nil, err
	}
	return name, nil
}

// Struct validates v using its `validate` struct tags.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Errorf("%s: field is required", field))
		case "min", "gte":
			msgs = append(msgs, fmt.Errorf("%s: must be at least %s", field, param))
		case "max", "lte":
			msgs = append(msgs, fmt.Errorf("%s: must not exceed %s", field, param))
		case "oneof":
			msgs = append(msgs, fmt.Errorf("%s: must be one of [%s]", field, param))
		case "fieldname":
			msgs = append(msgs, fmt.Errorf("%s: %q is not a valid field name", field, e.Value()))
		default:
			msgs = append(msgs, fmt.Errorf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return errors.Join(msgs...)
}
