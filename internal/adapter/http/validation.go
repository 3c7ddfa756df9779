package http

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"loan-proposal-service/pkg/id"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

var reDec2 = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// public ids = 32-char lowercase hex
	_ = v.RegisterValidation("hex32", func(fl validator.FieldLevel) bool {
		return id.Valid32(fl.Field().String())
	})
	// money as a non-negative decimal with at most 2 places ("1500", "1500.5", "1500.50")
	_ = v.RegisterValidation("dec2", func(fl validator.FieldLevel) bool {
		return reDec2.MatchString(fl.Field().String())
	})
	// CPF (11 digits) or CNPJ (14 digits), punctuation allowed
	_ = v.RegisterValidation("taxid", func(fl validator.FieldLevel) bool {
		n := 0
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsDigit(r):
				n++
			case r == '.' || r == '-' || r == '/' || r == ' ':
			default:
				return false
			}
		}
		return n == 11 || n == 14
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "hex32":
			out = append(out, FieldError{Field: field, Message: "must be 32-char lowercase hex"})
		case "dec2":
			out = append(out, FieldError{Field: field, Message: "must be a non-negative amount with at most 2 decimal places"})
		case "taxid":
			out = append(out, FieldError{Field: field, Message: "must be a CPF (11 digits) or CNPJ (14 digits)"})
		case "email":
			out = append(out, FieldError{Field: field, Message: "must be a valid email"})
		case "datetime":
			out = append(out, FieldError{Field: field, Message: "must be a date formatted as " + e.Param()})
		case "gte", "min":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte", "max":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
