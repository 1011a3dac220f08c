// Package openai implements llm.Translator on the OpenAI chat completions API.
package openai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/agentic-turing/atm/pkg/atmerr"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// ProviderName is the provider key used in configuration
const ProviderName = "openai"

// Translator sends single-turn prompts to an OpenAI compatible endpoint
type Translator struct {
	client *openai.Client
}

// New creates a Translator. baseURL may be empty to use the public API.
func New(apiKey, baseURL string) *Translator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Translator{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name
func (t *Translator) Name() string {
	return ProviderName
}

// Complete sends req as a chat completion and returns the first choice
func (t *Translator) Complete(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return llmtypes.Response{}, errors.Wrap(err, "openai chat completion failed")
	}

	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return llmtypes.Response{}, atmerr.New(atmerr.KindTranslation, "empty response from model", atmerr.Details{
			"provider": ProviderName,
			"model":    req.Model,
		})
	}

	return llmtypes.Response{
		Text:  text,
		Model: resp.Model,
		Usage: llmtypes.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// StatusCode extracts the HTTP status of an OpenAI API error, or 0
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
