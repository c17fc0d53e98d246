package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"voxmeter/internal/app/api/provider"
)

// TranscribeFunc computes a response per request. Return it from a mock
// expectation when the answer depends on the segment being transcribed.
type TranscribeFunc func(*provider.TranscriptionRequest) (*provider.TranscriptionResponse, error)

// MockTranscriber is a testify mock of provider.Transcriber.
type MockTranscriber struct {
	mock.Mock
	name string
}

// NewMockTranscriber creates a mock reporting name as its provider identity.
func NewMockTranscriber(name string) *MockTranscriber {
	return &MockTranscriber{name: name}
}

func (m *MockTranscriber) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         m.name,
		DisplayName:  m.name,
		Capabilities: []provider.Capability{provider.CapabilityTranscribe},
		BillingUnit:  provider.BillingUnitMinute,
	}
}

func (m *MockTranscriber) ValidateConfiguration() error { return nil }

func (m *MockTranscriber) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(TranscribeFunc); ok {
		return fn(req)
	}
	resp, _ := args.Get(0).(*provider.TranscriptionResponse)
	return resp, args.Error(1)
}

// MockTranslator is a testify mock of provider.Translator.
type MockTranslator struct {
	mock.Mock
	name string
}

// NewMockTranslator creates a mock reporting name as its provider identity.
func NewMockTranslator(name string) *MockTranslator {
	return &MockTranslator{name: name}
}

func (m *MockTranslator) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         m.name,
		DisplayName:  m.name,
		Capabilities: []provider.Capability{provider.CapabilityTranslate},
		BillingUnit:  provider.BillingUnitToken,
	}
}

func (m *MockTranslator) ValidateConfiguration() error { return nil }

func (m *MockTranslator) Translate(ctx context.Context, req *provider.TranslationRequest) (*provider.TranslationResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*provider.TranslationResponse)
	return resp, args.Error(1)
}

// MockDetector is a testify mock of provider.LanguageDetector.
type MockDetector struct {
	mock.Mock
	name string
}

// NewMockDetector creates a mock reporting name as its provider identity.
func NewMockDetector(name string) *MockDetector {
	return &MockDetector{name: name}
}

func (m *MockDetector) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:         m.name,
		DisplayName:  m.name,
		Capabilities: []provider.Capability{provider.CapabilityDetectLanguage},
		BillingUnit:  provider.BillingUnitMinute,
	}
}

func (m *MockDetector) ValidateConfiguration() error { return nil }

func (m *MockDetector) DetectLanguage(ctx context.Context, req *provider.DetectionRequest) (*provider.DetectionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*provider.DetectionResponse)
	return resp, args.Error(1)
}
