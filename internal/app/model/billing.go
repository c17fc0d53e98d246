package model

import (
	"time"
)

// Billable services.
const (
	ServiceTranscription   = "Transcription"
	ServiceTranslation     = "Translation"
	ServiceDetectLanguage  = "Detect Language"
	ServiceAudioProcessing = "Audio Processing"
	ServiceFileProcessing  = "File Processing"
)

// Usage row statuses.
const (
	UsageStatusSuccess = "success"
	UsageStatusFailed  = "failed"
)

// ServicePricing prices one (organization, service, provider) combination.
// An empty OrganizationID is a global row; an empty Provider matches any
// provider.
type ServicePricing struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId,omitempty" db:"organization_id"`
	Service        string    `json:"service" db:"service"`
	Provider       string    `json:"provider,omitempty" db:"provider"`
	PricePerToken  float64   `json:"pricePerToken" db:"price_per_token"`
	PricePerMinute float64   `json:"pricePerMinute" db:"price_per_minute"`
	Unit           string    `json:"unit" db:"unit"`
	Currency       string    `json:"currency" db:"currency"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for ServicePricing
func (ServicePricing) TableName() string {
	return "service_pricing"
}

// ServiceUsage is one append-only ledger row. IdempotencyKey identifies the
// provider-call attempt that produced it.
type ServiceUsage struct {
	ID                   int64     `json:"id" db:"id"`
	IdempotencyKey       string    `json:"idempotencyKey" db:"idempotency_key"`
	OrganizationID       string    `json:"organizationId" db:"organization_id"`
	UserID               string    `json:"userId" db:"user_id"`
	Service              string    `json:"service" db:"service"`
	Provider             string    `json:"provider,omitempty" db:"provider"`
	TokensUsed           int       `json:"tokensUsed" db:"tokens_used"`
	AudioDurationMinutes float64   `json:"audioDurationMinutes" db:"audio_duration_minutes"`
	Bytes                int64     `json:"bytes" db:"bytes"`
	Cost                 float64   `json:"cost" db:"cost"`
	Currency             string    `json:"currency" db:"currency"`
	Status               string    `json:"status" db:"status"`
	RequestMetadata      string    `json:"requestMetadata,omitempty" db:"request_metadata"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for ServiceUsage
func (ServiceUsage) TableName() string {
	return "service_usage"
}
