package provider

import (
	"fmt"
	"time"
)

// BillingUnit is the unit a provider is metered in.
type BillingUnit string

const (
	BillingUnitToken  BillingUnit = "token"
	BillingUnitMinute BillingUnit = "minute"
	BillingUnitByte   BillingUnit = "byte"
)

// Capability names one of the operations a provider can serve.
type Capability string

const (
	CapabilityTranscribe     Capability = "transcribe"
	CapabilityTranslate      Capability = "translate"
	CapabilityDetectLanguage Capability = "detect_language"
)

// Usage is the billable work one provider call consumed. Adapters report
// it; only the orchestrator turns it into a ledger row.
type Usage struct {
	Tokens       int     `json:"tokens,omitempty"`
	AudioSeconds float64 `json:"audio_seconds,omitempty"`
	Bytes        int64   `json:"bytes,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.Tokens += other.Tokens
	u.AudioSeconds += other.AudioSeconds
	u.Bytes += other.Bytes
}

// TranscriptionRequest represents a transcription request
type TranscriptionRequest struct {
	AudioPath string `json:"audio_path"`

	// DurationSeconds is the probed duration of AudioPath; adapters bill
	// with it and pick their API mode from it.
	DurationSeconds float64 `json:"duration_seconds"`

	Language string `json:"language,omitempty"` // "en", "es", empty for auto
	Model    string `json:"model,omitempty"`
}

// TranscriptionResponse represents the response from a transcription provider
type TranscriptionResponse struct {
	Text           string        `json:"text"`
	Language       string        `json:"language,omitempty"`
	Usage          Usage         `json:"usage"`
	ModelUsed      string        `json:"model_used,omitempty"`
	ProcessingTime time.Duration `json:"processing_time,omitempty"`
}

// TranslationRequest carries text to translate.
type TranslationRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

// TranslationResponse is the translated text with its token usage.
type TranslationResponse struct {
	Text           string        `json:"text"`
	Usage          Usage         `json:"usage"`
	ModelUsed      string        `json:"model_used,omitempty"`
	ProcessingTime time.Duration `json:"processing_time,omitempty"`
}

// DetectionRequest references an audio snippet.
type DetectionRequest struct {
	AudioPath       string  `json:"audio_path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// DetectionResponse is the detected language and the provider's confidence.
type DetectionResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Usage      Usage   `json:"usage"`
}

// ProviderInfo contains metadata about a provider
type ProviderInfo struct {
	Name           string       `json:"name"`         // pricing identity, e.g. "OpenAI"
	DisplayName    string       `json:"display_name"` // Human-readable name
	Capabilities   []Capability `json:"capabilities"`
	BillingUnit    BillingUnit  `json:"billing_unit"`
	DefaultModel   string       `json:"default_model,omitempty"`
	MaxFileSizeMB  int          `json:"max_file_size_mb,omitempty"` // 0 means no limit
	RequiresAPIKey bool         `json:"requires_api_key"`
}

// Error represents provider-specific errors
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code,omitempty"`
	Retryable  bool   `json:"retryable"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// NewError creates a non-retryable provider error.
func NewError(providerName, code, message string) *Error {
	return &Error{Code: code, Message: message, Provider: providerName}
}

// HTTPError classifies an unexpected HTTP status. Rate limits and server
// errors are retryable; everything else is permanent.
func HTTPError(providerName string, status int, body string) *Error {
	e := &Error{Provider: providerName, StatusCode: status}
	switch {
	case status == 401 || status == 403:
		e.Code, e.Message = "authentication_failed", "API key is invalid or missing"
	case status == 429:
		e.Code, e.Message, e.Retryable = "rate_limit_exceeded", "rate limit exceeded", true
	case status == 413:
		e.Code, e.Message = "file_too_large", "audio file is too large"
	case status == 400:
		e.Code, e.Message = "invalid_request", fmt.Sprintf("invalid request: %s", body)
	case status >= 500:
		e.Code, e.Message, e.Retryable = "server_error", "server error", true
	default:
		e.Code, e.Message = "unknown_error", fmt.Sprintf("unexpected HTTP status: %s", body)
	}
	return e
}
