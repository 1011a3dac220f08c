// Package anthropic implements llm.Translator on the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/agentic-turing/atm/pkg/atmerr"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// ProviderName is the provider key used in configuration
const ProviderName = "anthropic"

// Translator sends single-turn prompts to Claude
type Translator struct {
	client anthropic.Client
}

// New creates a Translator. The SDK's own retries are disabled so that the
// caller's retry policy is the only one in effect.
func New(apiKey string, opts ...option.RequestOption) *Translator {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Translator{client: anthropic.NewClient(all...)}
}

// Name returns the provider name
func (t *Translator) Name() string {
	return ProviderName
}

// Complete sends req as a single user message and returns the first text block
func (t *Translator) Complete(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return llmtypes.Response{}, errors.Wrap(err, "anthropic messages request failed")
	}

	var text string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			text = strings.TrimSpace(v.Text)
			break
		}
	}
	if text == "" {
		return llmtypes.Response{}, atmerr.New(atmerr.KindTranslation, "empty response from model", atmerr.Details{
			"provider": ProviderName,
			"model":    req.Model,
		})
	}

	return llmtypes.Response{
		Text:  text,
		Model: string(msg.Model),
		Usage: llmtypes.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// StatusCode extracts the HTTP status of an Anthropic API error, or 0
func StatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
