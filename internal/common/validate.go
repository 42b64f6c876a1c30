package common

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	contactEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	digitsPattern       = regexp.MustCompile(`^\d+$`)
)

// Validator returns the shared struct validator. Besides the built-in rules it
// knows contact_email (local@domain.tld with a tld of two or more characters)
// and digits_only.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("contact_email", matchString(contactEmailPattern))
		_ = validate.RegisterValidation("digits_only", matchString(digitsPattern))
	})
	return validate
}

func matchString(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidateStruct runs struct tag validation and converts failures into a 400 AppError.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError("VALIDATION_FAILED", "invalid input", http.StatusBadRequest, err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe.Namespace()), Rule: fe.Tag()})
	}
	appErr := NewAppError("VALIDATION_FAILED", "invalid input", http.StatusBadRequest, err)
	appErr.Details = fields
	return appErr
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
