// Package validation wraps go-playground/validator with field-level messages.
package validation

import (
	"errors"
	"fmt"
	apperrors "slotkeeper/pkg/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Validator is safe for concurrent use once built.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Register adds a custom tag. Call before first use.
func (v *Validator) Register(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

// Struct validates s and returns ValidationErrors on rule violations.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translate(validationErrs, "")
		}
		return err
	}
	return nil
}

// Var validates a single value against tag.
func (v *Validator) Var(field string, value any, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translate(validationErrs, field)
		}
		return err
	}
	return nil
}

func translate(errs validator.ValidationErrors, name string) ValidationErrors {
	var out ValidationErrors

	for _, err := range errs {
		field := err.Field()
		if name != "" {
			field = name
		}
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", field, err.Param())
		case "ltefield":
			message = fmt.Sprintf("%s must not exceed %s", field, err.Param())
		}

		out = append(out, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return out
}

// AppError converts a validation failure into the VALIDATION_ERROR response.
func AppError(message string, err error) *apperrors.AppError {
	details := map[string]any{"error": err.Error()}
	var list ValidationErrors
	if errors.As(err, &list) {
		details["fields"] = []ValidationError(list)
	}
	return apperrors.Validation(message, details)
}
