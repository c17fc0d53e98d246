package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	openaiapi "voxmeter/internal/app/api/openai"
	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

const defaultTargetLanguage = "English"

// Translator translates text with a chat completion model. It is billed by
// the total tokens the completion reports.
type Translator struct {
	client *openai.Client
	config config.OpenAIConfig

	Policy provider.RetryPolicy
}

var _ provider.Translator = (*Translator)(nil)

// NewTranslator creates a chat translator.
func NewTranslator(cfg config.OpenAIConfig) *Translator {
	if cfg.TranslateModel == "" {
		cfg.TranslateModel = openai.GPT4
	}
	return &Translator{
		client: openaiapi.NewClient(cfg),
		config: cfg,
		Policy: provider.DefaultRetryPolicy,
	}
}

func (t *Translator) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:           openaiapi.ProviderName,
		DisplayName:    "OpenAI Chat Translation",
		Capabilities:   []provider.Capability{provider.CapabilityTranslate},
		BillingUnit:    provider.BillingUnitToken,
		DefaultModel:   t.config.TranslateModel,
		RequiresAPIKey: true,
	}
}

func (t *Translator) ValidateConfiguration() error {
	if t.config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	return nil
}

// Messages builds the chat prompt for req.
func Messages(req *provider.TranslationRequest) []openai.ChatCompletionMessage {
	source := req.SourceLanguage
	if source == "" {
		source = "the source"
	}
	target := req.TargetLanguage
	if target == "" {
		target = defaultTargetLanguage
	}
	return []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("You are a translator from %s language to %s.", source, target),
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("Translate the following text to %s:\n\n%s", target, req.Text),
		},
	}
}

// Translate implements provider.Translator.
func (t *Translator) Translate(ctx context.Context, req *provider.TranslationRequest) (*provider.TranslationResponse, error) {
	startTime := time.Now()
	if strings.TrimSpace(req.Text) == "" {
		return nil, provider.NewError(openaiapi.ProviderName, "invalid_input", "text is required")
	}

	request := openai.ChatCompletionRequest{
		Model:    t.config.TranslateModel,
		Messages: Messages(req),
	}
	resp, err := provider.Retry(ctx, t.Policy, func() (openai.ChatCompletionResponse, error) {
		resp, err := t.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return resp, openaiapi.ClassifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, provider.NewError(openaiapi.ProviderName, "empty_response", "completion returned no choices")
	}

	return &provider.TranslationResponse{
		Text:           strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage:          provider.Usage{Tokens: resp.Usage.TotalTokens},
		ModelUsed:      resp.Model,
		ProcessingTime: time.Since(startTime),
	}, nil
}
