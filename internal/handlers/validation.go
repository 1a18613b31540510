package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bimmatch/guard/internal/models"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("rate_limit_action", func(fl validator.FieldLevel) bool {
		action := models.Action(fl.Field().String())
		for _, known := range models.Actions() {
			if action == known {
				return true
			}
		}
		return false
	})

	_ = v.RegisterValidation("activity_signal", func(fl validator.FieldLevel) bool {
		return models.ActivitySignal(fl.Field().String()).Valid()
	})

	return v
}

// ValidateRequest validates a request struct using go-playground/validator
// Returns a user-friendly error message if validation fails
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			first := ValidationErrorResponse{
				Field:   ve[0].Field(),
				Message: formatValidationError(ve[0]),
			}
			return fmt.Errorf("validation failed: %s: %s", first.Field, first.Message)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "rate_limit_action":
		return "must be one of: login, register, password_reset, generic_api, file_upload"
	case "activity_signal":
		return "must be one of: pointer_down, pointer_move, key_down, scroll, touch_start, click"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
