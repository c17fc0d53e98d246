package provider

import (
	"context"
	"time"
)

// Provider is the metadata every adapter exposes.
type Provider interface {
	// Info describes the provider identity and billing unit.
	Info() ProviderInfo

	// ValidateConfiguration reports missing credentials or settings.
	ValidateConfiguration() error
}

// Transcriber turns an audio file into text.
//
// Adapters choose their own API mode (e.g. short-form vs long-running) from
// the request; callers never branch on the provider.
type Transcriber interface {
	Provider
	Transcribe(ctx context.Context, request *TranscriptionRequest) (*TranscriptionResponse, error)
}

// Translator translates text into a target language.
type Translator interface {
	Provider
	Translate(ctx context.Context, request *TranslationRequest) (*TranslationResponse, error)
}

// LanguageDetector identifies the spoken language of a short audio snippet.
type LanguageDetector interface {
	Provider
	DetectLanguage(ctx context.Context, request *DetectionRequest) (*DetectionResponse, error)
}

// LongRunner is implemented by adapters whose calls may legitimately outlast
// the orchestrator's default per-call timeout.
type LongRunner interface {
	MaxCallDuration() time.Duration
}
