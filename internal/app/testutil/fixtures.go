package testutil

import (
	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/model"
)

// Fixture identities.
const (
	OrgID  = "org-test"
	UserID = "user-test"
	FileID = "file-test"
)

// GlobalPricing is an active USD row that applies to every organization.
func GlobalPricing(service, providerName string, perToken, perMinute float64) model.ServicePricing {
	return model.ServicePricing{
		Service:        service,
		Provider:       providerName,
		PricePerToken:  perToken,
		PricePerMinute: perMinute,
		Unit:           unitFor(perToken),
		Currency:       "USD",
		IsActive:       true,
	}
}

// OrgPricing is an active USD row for orgID only.
func OrgPricing(orgID, service, providerName string, perToken, perMinute float64) model.ServicePricing {
	p := GlobalPricing(service, providerName, perToken, perMinute)
	p.OrganizationID = orgID
	return p
}

func unitFor(perToken float64) string {
	if perToken > 0 {
		return "token"
	}
	return "minute"
}

// StandardPricing covers every service the pipeline bills.
func StandardPricing() []model.ServicePricing {
	return []model.ServicePricing{
		GlobalPricing(model.ServiceTranscription, "OpenAI", 0, 0.006),
		GlobalPricing(model.ServiceTranscription, "Google", 0, 0.024),
		GlobalPricing(model.ServiceTranscription, "", 0, 0.01),
		GlobalPricing(model.ServiceTranslation, "", 0.00002, 0),
		GlobalPricing(model.ServiceDetectLanguage, "", 0, 0.0043),
		GlobalPricing(model.ServiceAudioProcessing, "", 0, 0.001),
	}
}

// Transcript builds a transcription response billed by duration.
func Transcript(text string, seconds float64) *provider.TranscriptionResponse {
	return &provider.TranscriptionResponse{
		Text:  text,
		Usage: provider.Usage{AudioSeconds: seconds},
	}
}

// Translation builds a translation response billed by tokens.
func Translation(text string, tokens int) *provider.TranslationResponse {
	return &provider.TranslationResponse{
		Text:  text,
		Usage: provider.Usage{Tokens: tokens},
	}
}
