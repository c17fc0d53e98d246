// Package deepgram detects spoken language with the Deepgram listen API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

const providerName = config.ProviderDeepgram

// Detector implements provider.LanguageDetector.
type Detector struct {
	config config.DeepgramConfig
	client *http.Client

	Policy provider.RetryPolicy
}

var _ provider.LanguageDetector = (*Detector)(nil)

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage   string  `json:"detected_language"`
			LanguageConfidence float64 `json:"language_confidence"`
		} `json:"channels"`
	} `json:"results"`
}

type errorResponse struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// NewDetector creates a Deepgram detector.
func NewDetector(cfg config.DeepgramConfig, client *http.Client) *Detector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com/v1"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Detector{config: cfg, client: client, Policy: provider.DefaultRetryPolicy}
}

func (d *Detector) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           providerName,
		DisplayName:    "Deepgram Language Detection",
		Capabilities:   []provider.Capability{provider.CapabilityDetectLanguage},
		BillingUnit:    provider.BillingUnitMinute,
		RequiresAPIKey: true,
	}
}

func (d *Detector) ValidateConfiguration() error {
	if d.config.APIKey == "" {
		return fmt.Errorf("Deepgram API key is required")
	}
	return nil
}

// DetectLanguage sends the WAV snippet and returns the language of the
// first channel.
func (d *Detector) DetectLanguage(ctx context.Context, req *provider.DetectionRequest) (*provider.DetectionResponse, error) {
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, provider.NewError(providerName, "file_not_found",
			fmt.Sprintf("failed to read audio: %v", err))
	}

	result, err := provider.Retry(ctx, d.Policy, func() (*listenResponse, error) {
		return d.listen(ctx, audio)
	})
	if err != nil {
		return nil, err
	}
	if len(result.Results.Channels) == 0 || result.Results.Channels[0].DetectedLanguage == "" {
		return nil, provider.NewError(providerName, "no_language", "no language detected")
	}

	seconds := req.DurationSeconds
	if seconds <= 0 {
		seconds = result.Metadata.Duration
	}
	channel := result.Results.Channels[0]
	return &provider.DetectionResponse{
		Language:   channel.DetectedLanguage,
		Confidence: channel.LanguageConfidence,
		Usage:      provider.Usage{AudioSeconds: seconds, Bytes: int64(len(audio))},
	}, nil
}

func (d *Detector) listen(ctx context.Context, audio []byte) (*listenResponse, error) {
	url := d.config.BaseURL + "/listen?detect_language=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return nil, provider.NewError(providerName, "request_creation_error", err.Error())
	}
	httpReq.Header.Set("Authorization", "Token "+d.config.APIKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	started := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &provider.Error{
			Code:      "network_error",
			Message:   fmt.Sprintf("no response received from Deepgram after %s: %v", time.Since(started).Round(time.Millisecond), err),
			Provider:  providerName,
			Retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.Error{Code: "network_error", Message: err.Error(), Provider: providerName, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrMsg != "" {
			perr := provider.HTTPError(providerName, resp.StatusCode, apiErr.ErrMsg)
			perr.Message = fmt.Sprintf("%s (code: %s)", apiErr.ErrMsg, apiErr.ErrCode)
			return nil, perr
		}
		return nil, provider.HTTPError(providerName, resp.StatusCode, string(body))
	}

	var out listenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, provider.NewError(providerName, "response_parse_error", err.Error())
	}
	return &out, nil
}
