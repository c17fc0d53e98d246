// Package errors renders pipeline failures as JSON API errors.
package errors

import (
	"fmt"
	"net/http"

	apperrors "voxmeter/internal/app/errors"
)

// ErrorKind represents different types of API errors
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindBadRequest         ErrorKind = "bad_request"
	KindNotFound           ErrorKind = "not_found"
	KindPaymentRequired    ErrorKind = "payment_required"
	KindUnprocessable      ErrorKind = "unprocessable"
	KindBadGateway         ErrorKind = "bad_gateway"
	KindInternal           ErrorKind = "internal"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// APIError represents a structured API error response
type APIError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code,omitempty"`
	Provider  string            `json:"provider,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error kind
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindBadGateway:
		return http.StatusBadGateway
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Message: message,
		Details: fields,
	}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Kind:    KindBadRequest,
		Message: message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Message: message,
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Kind:    KindServiceUnavailable,
		Message: message,
	}
}

// FromError maps a pipeline error to its API error. The message of
// persistence failures is replaced so storage details do not leak.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}

	if apperrors.Is(err, apperrors.ErrFileNotFound) {
		return &APIError{Kind: KindNotFound, Message: err.Error(), Code: "file_not_found"}
	}

	kind := apperrors.KindOf(err)
	apiErr := &APIError{Message: err.Error(), Code: string(kind)}
	switch kind {
	case apperrors.KindInvalidRequest:
		apiErr.Kind = KindValidation
	case apperrors.KindDownloadFailure:
		apiErr.Kind = KindBadGateway
	case apperrors.KindProviderFailure:
		apiErr.Kind = KindBadGateway
		apiErr.Provider = apperrors.ProviderOf(err)
	case apperrors.KindConversionFailure, apperrors.KindSegmentationFailure:
		apiErr.Kind = KindUnprocessable
	case apperrors.KindPricingNotFound:
		apiErr.Kind = KindPaymentRequired
	case apperrors.KindPersistenceFailure:
		apiErr.Kind = KindInternal
		apiErr.Message = "failed to persist operation state"
	case apperrors.KindUploadFailure:
		apiErr.Kind = KindInternal
		apiErr.Message = "failed to store artifact"
	default:
		apiErr.Kind = KindInternal
		apiErr.Message = "Internal server error"
		apiErr.Code = ""
	}
	return apiErr
}
