package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

// GeminiTranslator translates text with a Gemini model, billed by the
// token count in the response usage metadata.
type GeminiTranslator struct {
	client *genai.Client
	model  string

	Policy provider.RetryPolicy
}

var _ provider.Translator = (*GeminiTranslator)(nil)

// NewGeminiTranslator creates a translator against the Gemini API backend.
func NewGeminiTranslator(ctx context.Context, cfg config.GoogleConfig, httpClient *http.Client) (*GeminiTranslator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiTranslator{client: client, model: model, Policy: provider.DefaultRetryPolicy}, nil
}

func (g *GeminiTranslator) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           providerName,
		DisplayName:    "Google Gemini Translation",
		Capabilities:   []provider.Capability{provider.CapabilityTranslate},
		BillingUnit:    provider.BillingUnitToken,
		DefaultModel:   g.model,
		RequiresAPIKey: true,
	}
}

func (g *GeminiTranslator) ValidateConfiguration() error {
	if g.client == nil {
		return fmt.Errorf("Gemini client is not initialized")
	}
	return nil
}

// Translate implements provider.Translator.
func (g *GeminiTranslator) Translate(ctx context.Context, req *provider.TranslationRequest) (*provider.TranslationResponse, error) {
	startTime := time.Now()
	if strings.TrimSpace(req.Text) == "" {
		return nil, provider.NewError(providerName, "invalid_input", "text is required")
	}

	target := req.TargetLanguage
	if target == "" {
		target = "English"
	}
	source := req.SourceLanguage
	if source == "" {
		source = "the source"
	}
	generateConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(
			fmt.Sprintf("You are a translator from %s language to %s. Reply with the translation only.", source, target),
			genai.RoleUser),
	}
	contents := genai.Text(fmt.Sprintf("Translate the following text to %s:\n\n%s", target, req.Text))

	resp, err := provider.Retry(ctx, g.Policy, func() (*genai.GenerateContentResponse, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, generateConfig)
		if err != nil {
			return nil, classifyGenAIError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, provider.NewError(providerName, "empty_response", "Gemini returned no text")
	}
	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return &provider.TranslationResponse{
		Text:           text,
		Usage:          provider.Usage{Tokens: tokens},
		ModelUsed:      model,
		ProcessingTime: time.Since(startTime),
	}, nil
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.HTTPError(providerName, apiErr.Code, apiErr.Message)
	}
	return &provider.Error{
		Code:      "network_error",
		Message:   fmt.Sprintf("Gemini request failed: %v", err),
		Provider:  providerName,
		Retryable: true,
	}
}
