package openai

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/config"
)

// ProviderName is the pricing identity of every OpenAI adapter.
const ProviderName = config.ProviderOpenAI

// NewClient builds a go-openai client from cfg. An empty BaseURL keeps the
// public endpoint.
func NewClient(cfg config.OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// ClassifyError converts go-openai errors into provider errors.
func ClassifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return provider.HTTPError(ProviderName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return provider.HTTPError(ProviderName, reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	return &provider.Error{
		Code:      "network_error",
		Message:   fmt.Sprintf("request failed: %v", err),
		Provider:  ProviderName,
		Retryable: true,
	}
}
