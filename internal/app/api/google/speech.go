// Package google adapts Google Speech-to-Text and Gemini.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/config"
)

const (
	providerName        = config.ProviderGoogle
	defaultLanguageCode = "en-US"
	sampleRateHertz     = 16000
)

// SpeechTranscriber transcribes canonical WAV with the Speech-to-Text REST
// API. Short clips go inline to speech:recognize; longer ones are staged in
// the bucket and run as a long-running operation.
type SpeechTranscriber struct {
	config config.GoogleConfig
	store  objectstore.Store
	client *http.Client
	logger *zap.Logger

	Policy     provider.RetryPolicy
	PollPolicy provider.RetryPolicy
}

var (
	_ provider.Transcriber = (*SpeechTranscriber)(nil)
	_ provider.LongRunner  = (*SpeechTranscriber)(nil)
)

type recognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type recognitionAudio struct {
	Content string `json:"content,omitempty"`
	URI     string `json:"uri,omitempty"`
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		LanguageCode string `json:"languageCode"`
	} `json:"results"`
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Response *recognizeResponse `json:"response,omitempty"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewSpeechTranscriber creates the adapter. store receives staged audio for
// long-running recognition; it must be the Cloud Storage store holding
// cfg.StagingBucket (see objectstore.NewStaging), since Speech only reads
// gs:// URIs.
func NewSpeechTranscriber(cfg config.GoogleConfig, store objectstore.Store, client *http.Client, logger *zap.Logger) *SpeechTranscriber {
	if cfg.SpeechBaseURL == "" {
		cfg.SpeechBaseURL = "https://speech.googleapis.com/v1"
	}
	if cfg.ShortFormSeconds <= 0 {
		cfg.ShortFormSeconds = config.DefaultShortFormSeconds
	}
	if cfg.LongRunningTimeout <= 0 {
		cfg.LongRunningTimeout = config.DefaultLongRunningTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeechTranscriber{
		config: cfg,
		store:  store,
		client: client,
		logger: logger.Named("google-speech"),
		Policy: provider.DefaultRetryPolicy,
		PollPolicy: provider.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  cfg.LongRunningTimeout,
		},
	}
}

func (s *SpeechTranscriber) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           providerName,
		DisplayName:    "Google Speech-to-Text",
		Capabilities:   []provider.Capability{provider.CapabilityTranscribe},
		BillingUnit:    provider.BillingUnitMinute,
		RequiresAPIKey: true,
	}
}

func (s *SpeechTranscriber) ValidateConfiguration() error {
	if s.config.APIKey == "" {
		return fmt.Errorf("Google API key is required")
	}
	if s.store == nil || s.config.StagingBucket == "" {
		return fmt.Errorf("Google staging bucket is required for long-running recognition")
	}
	return nil
}

// MaxCallDuration covers the staging upload plus the polling window.
func (s *SpeechTranscriber) MaxCallDuration() time.Duration {
	return s.config.LongRunningTimeout + 2*time.Minute
}

// Transcribe implements provider.Transcriber. The input must be 16 kHz mono
// PCM; the orchestrator converts before calling.
func (s *SpeechTranscriber) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResponse, error) {
	startTime := time.Now()

	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, provider.NewError(providerName, "file_not_found",
			fmt.Sprintf("input file not found: %s", req.AudioPath))
	}

	cfg := recognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            sampleRateHertz,
		LanguageCode:               req.Language,
		EnableAutomaticPunctuation: true,
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = defaultLanguageCode
	}

	var result *recognizeResponse
	if req.DurationSeconds <= float64(s.config.ShortFormSeconds) {
		result, err = s.recognize(ctx, req.AudioPath, cfg)
	} else {
		result, err = s.longRunningRecognize(ctx, req.AudioPath, cfg)
	}
	if err != nil {
		return nil, err
	}

	return &provider.TranscriptionResponse{
		Text:     joinTranscripts(result),
		Language: cfg.LanguageCode,
		Usage: provider.Usage{
			AudioSeconds: req.DurationSeconds,
			Bytes:        info.Size(),
		},
		ProcessingTime: time.Since(startTime),
	}, nil
}

func joinTranscripts(r *recognizeResponse) string {
	lines := make([]string, 0, len(r.Results))
	for _, result := range r.Results {
		if len(result.Alternatives) > 0 {
			lines = append(lines, strings.TrimSpace(result.Alternatives[0].Transcript))
		}
	}
	return strings.Join(lines, "\n")
}

func (s *SpeechTranscriber) recognize(ctx context.Context, path string, cfg recognitionConfig) (*recognizeResponse, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, provider.NewError(providerName, "file_open_error", err.Error())
	}
	body := recognizeRequest{
		Config: cfg,
		Audio:  recognitionAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}
	return provider.Retry(ctx, s.Policy, func() (*recognizeResponse, error) {
		var out recognizeResponse
		return &out, s.call(ctx, http.MethodPost, "/speech:recognize", body, &out)
	})
}

func (s *SpeechTranscriber) longRunningRecognize(ctx context.Context, path string, cfg recognitionConfig) (*recognizeResponse, error) {
	key := objectstore.StagingKey(uuid.NewString(), path)
	if _, err := objectstore.UploadFile(ctx, s.store, s.config.StagingBucket, key, path, "audio/wav"); err != nil {
		return nil, &provider.Error{Code: "staging_failed", Message: err.Error(), Provider: providerName}
	}
	defer func() {
		// the staged copy is only needed while the operation runs
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.store.Delete(cleanupCtx, s.config.StagingBucket, key); err != nil {
			s.logger.Warn("failed to delete staged audio", zap.String("key", key), zap.Error(err))
		}
	}()

	body := recognizeRequest{
		Config: cfg,
		Audio:  recognitionAudio{URI: fmt.Sprintf("gs://%s/%s", s.config.StagingBucket, key)},
	}
	op, err := provider.Retry(ctx, s.Policy, func() (*operation, error) {
		var out operation
		return &out, s.call(ctx, http.MethodPost, "/speech:longrunningrecognize", body, &out)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("long-running recognition started", zap.String("operation", op.Name))

	err = provider.Poll(ctx, s.PollPolicy, func() (bool, error) {
		if op.Done {
			return true, nil
		}
		var next operation
		if err := s.call(ctx, http.MethodGet, "/operations/"+url.PathEscape(op.Name), nil, &next); err != nil {
			return false, err
		}
		op = &next
		return op.Done, nil
	})
	if err != nil {
		if perr, ok := err.(*provider.Error); ok && perr.Provider == "" {
			perr.Provider = providerName
		}
		return nil, err
	}
	if op.Error != nil {
		return nil, provider.NewError(providerName, "operation_failed",
			fmt.Sprintf("long-running recognition failed: %s (code %d)", op.Error.Message, op.Error.Code))
	}
	if op.Response == nil {
		return &recognizeResponse{}, nil
	}
	return op.Response, nil
}

// call sends one REST request authenticated by the API key.
func (s *SpeechTranscriber) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return provider.NewError(providerName, "request_creation_error", err.Error())
		}
		body = bytes.NewReader(raw)
	}

	endpoint := s.config.SpeechBaseURL + path + "?key=" + url.QueryEscape(s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return provider.NewError(providerName, "request_creation_error", err.Error())
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &provider.Error{
			Code:      "network_error",
			Message:   fmt.Sprintf("failed to call Speech-to-Text: %v", err),
			Provider:  providerName,
			Retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &provider.Error{Code: "network_error", Message: err.Error(), Provider: providerName, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return provider.HTTPError(providerName, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return provider.NewError(providerName, "response_parse_error", err.Error())
	}
	return nil
}
