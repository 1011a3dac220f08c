// Package google implements llm.Translator on the Gemini API through the
// google.golang.org/genai SDK.
package google

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/agentic-turing/atm/pkg/atmerr"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// ProviderName is the provider key used in configuration
const ProviderName = "google"

// Translator sends single-turn prompts to Gemini
type Translator struct {
	client *genai.Client
}

// New creates a Translator against the Gemini API. baseURL may be empty.
func New(ctx context.Context, apiKey, baseURL string) (*Translator, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Google GenAI client")
	}
	return &Translator{client: client}, nil
}

// Name returns the provider name
func (t *Translator) Name() string {
	return ProviderName
}

// Complete sends req through GenerateContent
func (t *Translator) Complete(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := t.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return llmtypes.Response{}, errors.Wrap(err, "gemini generate content failed")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return llmtypes.Response{}, atmerr.New(atmerr.KindTranslation, "empty response from model", atmerr.Details{
			"provider": ProviderName,
			"model":    req.Model,
		})
	}

	out := llmtypes.Response{Text: text, Model: req.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.Usage = llmtypes.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
