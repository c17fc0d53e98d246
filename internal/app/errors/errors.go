package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a pipeline failure. Callers translate kinds into transport
// level statuses; the pipeline itself only decides abort vs. continue.
type Kind string

const (
	KindUnknown             Kind = ""
	KindDownloadFailure     Kind = "download_failure"
	KindConversionFailure   Kind = "conversion_failure"
	KindSegmentationFailure Kind = "segmentation_failure"
	KindProviderFailure     Kind = "provider_failure"
	KindPricingNotFound     Kind = "pricing_not_found"
	KindPersistenceFailure  Kind = "persistence_failure"
	KindUploadFailure       Kind = "upload_failure"
	KindInvalidRequest      Kind = "invalid_request"
)

// Common error values. Compare with errors.Is.
var (
	ErrMissingConfig    = New("configuration is required")
	ErrInvalidConfig    = New("invalid configuration")
	ErrProviderNotFound = New("provider not found")
	ErrFileNotFound     = New("file not found")
	ErrPricingNotFound  = NewKind(KindPricingNotFound, "active pricing not found")
	ErrPricingAmbiguous = NewKind(KindPricingNotFound, "more than one active pricing row")
	ErrKeyConflict      = NewKind(KindInvalidRequest, "idempotency key belongs to another usage")
	ErrNoSegments       = NewKind(KindSegmentationFailure, "no segments produced")
	ErrInvalidWav       = NewKind(KindConversionFailure, "invalid WAV file: missing RIFF or WAVE header")
)

// Error represents a standardized error
type Error struct {
	kind     Kind
	provider string
	message  string
	cause    error
}

// New creates a new error
func New(message string) *Error {
	return &Error{message: message}
}

// Newf creates a new formatted error
func Newf(format string, args ...interface{}) *Error {
	return &Error{message: fmt.Sprintf(format, args...)}
}

// NewKind creates a classified error.
func NewKind(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		kind:    KindOf(err),
		message: message,
		cause:   err,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		kind:    KindOf(err),
		message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// WrapKind classifies err as kind. A nil err yields nil.
func WrapKind(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, message: message, cause: err}
}

// Provider wraps a provider error, keeping the provider identity so the
// orchestrator can apply its partial-success policy.
func Provider(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		kind:     KindProviderFailure,
		provider: provider,
		message:  fmt.Sprintf("provider %s failed", provider),
		cause:    err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// ProviderName returns the provider identity for provider failures.
func (e *Error) ProviderName() string {
	return e.provider
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.message == t.message && e.kind == t.kind
}

// KindOf returns the outermost classification found in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return KindUnknown
		}
		if e.kind != KindUnknown {
			return e.kind
		}
		err = e.cause
	}
	return KindUnknown
}

// ProviderOf returns the provider named by the first provider failure in err's chain.
func ProviderOf(err error) string {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return ""
		}
		if e.provider != "" {
			return e.provider
		}
		err = e.cause
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// RequiredField returns an error for missing required fields
func RequiredField(field string) error {
	return NewKind(KindInvalidRequest, field+" is required")
}

// InvalidField returns an error for invalid field values
func InvalidField(field string, reason string) error {
	return NewKind(KindInvalidRequest, fmt.Sprintf("%s is invalid: %s", field, reason))
}

// NotFound returns an error for items that were not found
func NotFound(itemType string, identifier string) error {
	return Newf("%s not found: %s", itemType, identifier)
}
