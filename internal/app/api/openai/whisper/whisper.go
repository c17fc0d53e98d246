package whisper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	openaiapi "voxmeter/internal/app/api/openai"
	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

const (
	transcriptionPrompt      = "This is an audio transcription task."
	transcriptionTemperature = 0.5
)

// RemoteTranscriber implements remote transcription using the OpenAI API.
type RemoteTranscriber struct {
	client *openai.Client
	config config.OpenAIConfig

	// Policy controls retries of rate-limited and failed calls.
	Policy provider.RetryPolicy
}

var _ provider.Transcriber = (*RemoteTranscriber)(nil)

// NewRemoteTranscriber creates a new RemoteTranscriber instance.
func NewRemoteTranscriber(cfg config.OpenAIConfig) *RemoteTranscriber {
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = openai.Whisper1
	}
	return &RemoteTranscriber{
		client: openaiapi.NewClient(cfg),
		config: cfg,
		Policy: provider.DefaultRetryPolicy,
	}
}

// Info describes the Whisper adapter.
func (rt *RemoteTranscriber) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           openaiapi.ProviderName,
		DisplayName:    "OpenAI Whisper API",
		Capabilities:   []provider.Capability{provider.CapabilityTranscribe},
		BillingUnit:    provider.BillingUnitMinute,
		DefaultModel:   rt.config.TranscribeModel,
		MaxFileSizeMB:  25,
		RequiresAPIKey: true,
	}
}

// ValidateConfiguration validates the provider configuration
func (rt *RemoteTranscriber) ValidateConfiguration() error {
	if rt.config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	return nil
}

// Transcribe sends the file to Whisper. Usage is the probed duration of the
// file; Whisper bills by audio length.
func (rt *RemoteTranscriber) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
	startTime := time.Now()

	if req.AudioPath == "" {
		return nil, provider.NewError(openaiapi.ProviderName, "invalid_input", "audio path is required")
	}
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, provider.NewError(openaiapi.ProviderName, "file_not_found",
			fmt.Sprintf("input file not found: %s", req.AudioPath))
	}

	model := req.Model
	if model == "" {
		model = rt.config.TranscribeModel
	}
	audioRequest := openai.AudioRequest{
		Model:       model,
		FilePath:    req.AudioPath,
		Prompt:      transcriptionPrompt,
		Temperature: transcriptionTemperature,
		Language:    req.Language,
		Format:      openai.AudioResponseFormatJSON,
	}

	resp, err := provider.Retry(ctx, rt.Policy, func() (openai.AudioResponse, error) {
		resp, err := rt.client.CreateTranscription(ctx, audioRequest)
		if err != nil {
			return resp, openaiapi.ClassifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	seconds := req.DurationSeconds
	if seconds <= 0 {
		seconds = resp.Duration
	}
	return &provider.TranscriptionResponse{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Usage: provider.Usage{
			AudioSeconds: seconds,
			Bytes:        info.Size(),
		},
		ModelUsed:      model,
		ProcessingTime: time.Since(startTime),
	}, nil
}
