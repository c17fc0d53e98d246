package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"voxmeter/internal/api/errors"
)

// Validator interface for domain validation
type Validator interface {
	Validate() error
}

// ValidateRequest binds the JSON body into req and runs its struct tags and,
// when implemented, its domain validation.
func ValidateRequest(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return validationError("Validation failed", "request", "invalid JSON format", err)
	}
	if v, ok := req.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQuery binds query parameters into req.
func ValidateQuery(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return validationError("Invalid query parameters", "query", "invalid query parameters", err)
	}
	if v, ok := req.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FieldErrors describes validator failures per lower-cased field.
func FieldErrors(err error) map[string]string {
	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return nil
	}
	details := make(map[string]string, len(validationErrs))
	for _, fieldError := range validationErrs {
		field := strings.ToLower(fieldError.Field())
		switch fieldError.Tag() {
		case "required", "required_without":
			details[field] = "is required"
		case "url":
			details[field] = "must be a valid URL"
		case "max":
			details[field] = "is too long"
		case "gte", "lte":
			details[field] = "is out of range"
		case "oneof":
			details[field] = "must be one of the allowed values"
		default:
			details[field] = "is invalid"
		}
	}
	return details
}

func validationError(message, fallbackField, fallback string, err error) *errors.APIError {
	details := FieldErrors(err)
	if details == nil {
		details = map[string]string{fallbackField: fallback}
	}
	return errors.NewValidationError(message, details)
}
