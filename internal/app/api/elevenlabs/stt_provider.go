package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

const (
	providerName   = config.ProviderElevenLabs
	maxFileSizeMB  = 25
	defaultModelID = "scribe_v1"
)

// STTProvider transcribes audio with the ElevenLabs Speech-to-Text API.
type STTProvider struct {
	config config.ElevenLabsConfig
	client *http.Client

	Policy provider.RetryPolicy
}

var _ provider.Transcriber = (*STTProvider)(nil)

type sttResponse struct {
	Text                string  `json:"text"`
	LanguageCode        string  `json:"language_code,omitempty"`
	LanguageProbability float64 `json:"language_probability,omitempty"`
}

// NewSTTProvider creates a new ElevenLabs STT provider. Timeouts come from
// the caller's context.
func NewSTTProvider(cfg config.ElevenLabsConfig, client *http.Client) *STTProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModelID
	}
	if client == nil {
		client = &http.Client{}
	}
	return &STTProvider{config: cfg, client: client, Policy: provider.DefaultRetryPolicy}
}

func (el *STTProvider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           providerName,
		DisplayName:    "ElevenLabs Speech-to-Text",
		Capabilities:   []provider.Capability{provider.CapabilityTranscribe},
		BillingUnit:    provider.BillingUnitMinute,
		DefaultModel:   el.config.Model,
		MaxFileSizeMB:  maxFileSizeMB,
		RequiresAPIKey: true,
	}
}

// ValidateConfiguration validates the provider configuration
func (el *STTProvider) ValidateConfiguration() error {
	if el.config.APIKey == "" {
		return fmt.Errorf("ElevenLabs API key is required")
	}
	if el.config.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

// Transcribe implements provider.Transcriber.
func (el *STTProvider) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
	startTime := time.Now()

	if req.AudioPath == "" {
		return nil, provider.NewError(providerName, "invalid_input", "audio path is required")
	}
	fileInfo, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, provider.NewError(providerName, "file_not_found",
			fmt.Sprintf("input file not found: %s", req.AudioPath))
	}
	if fileInfo.Size() > maxFileSizeMB*1024*1024 {
		return nil, provider.NewError(providerName, "file_too_large",
			fmt.Sprintf("file size exceeds %dMB limit", maxFileSizeMB))
	}

	model := req.Model
	if model == "" {
		model = el.config.Model
	}

	result, err := provider.Retry(ctx, el.Policy, func() (*sttResponse, error) {
		return el.send(ctx, req, model)
	})
	if err != nil {
		return nil, err
	}

	return &provider.TranscriptionResponse{
		Text:     strings.TrimSpace(result.Text),
		Language: result.LanguageCode,
		Usage: provider.Usage{
			AudioSeconds: req.DurationSeconds,
			Bytes:        fileInfo.Size(),
		},
		ModelUsed:      model,
		ProcessingTime: time.Since(startTime),
	}, nil
}

func (el *STTProvider) send(ctx context.Context, req *provider.TranscriptionRequest, model string) (*sttResponse, error) {
	httpReq, err := el.createHTTPRequest(ctx, req, model)
	if err != nil {
		return nil, err
	}

	resp, err := el.client.Do(httpReq)
	if err != nil {
		return nil, &provider.Error{
			Code:      "network_error",
			Message:   fmt.Sprintf("failed to call ElevenLabs API: %v", err),
			Provider:  providerName,
			Retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, provider.HTTPError(providerName, resp.StatusCode, string(body))
	}

	var out sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.NewError(providerName, "response_parse_error",
			fmt.Sprintf("failed to parse API response: %v", err))
	}
	return &out, nil
}

// createHTTPRequest builds the multipart upload. The body is rebuilt on
// every attempt so retries resend the whole file.
func (el *STTProvider) createHTTPRequest(ctx context.Context, req *provider.TranscriptionRequest, model string) (*http.Request, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, provider.NewError(providerName, "file_open_error",
			fmt.Sprintf("failed to open audio file: %v", err))
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, provider.NewError(providerName, "form_creation_error", err.Error())
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, provider.NewError(providerName, "file_copy_error", err.Error())
	}
	if err := writer.WriteField("model_id", model); err != nil {
		return nil, provider.NewError(providerName, "form_field_error", err.Error())
	}
	if req.Language != "" {
		if err := writer.WriteField("language_code", req.Language); err != nil {
			return nil, provider.NewError(providerName, "form_field_error", err.Error())
		}
	}
	if err := writer.Close(); err != nil {
		return nil, provider.NewError(providerName, "form_creation_error", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, el.config.BaseURL+"/speech-to-text", &body)
	if err != nil {
		return nil, provider.NewError(providerName, "request_creation_error", err.Error())
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("xi-api-key", el.config.APIKey)
	httpReq.Header.Set("User-Agent", "voxmeter/1.0")
	return httpReq, nil
}
