package llm

import (
	"context"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/llm/anthropic"
	"github.com/agentic-turing/atm/pkg/llm/google"
	"github.com/agentic-turing/atm/pkg/llm/openai"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// Providers lists the supported provider names
var Providers = []string{anthropic.ProviderName, openai.ProviderName, google.ProviderName}

var keyEnv = map[string]string{
	anthropic.ProviderName: "ANTHROPIC_API_KEY",
	openai.ProviderName:    "OPENAI_API_KEY",
	google.ProviderName:    "GEMINI_API_KEY",
}

// NewFromConfig creates the translator selected by cfg.Provider, wrapped with
// the configured retry policy.
func NewFromConfig(ctx context.Context, cfg *config.Config) (llmtypes.Translator, error) {
	envVar, ok := keyEnv[cfg.Provider]
	if !ok {
		return nil, atmerr.New(atmerr.KindConfiguration, "unknown provider", atmerr.Details{
			"provider":  cfg.Provider,
			"supported": Providers,
		})
	}

	apiKey := cfg.APIKeyFor(cfg.Provider)
	if apiKey == "" {
		return nil, atmerr.New(atmerr.KindConfiguration, envVar+" environment variable not set", atmerr.Details{
			"provider": cfg.Provider,
		})
	}

	var t llmtypes.Translator
	switch cfg.Provider {
	case anthropic.ProviderName:
		t = anthropic.New(apiKey)
	case openai.ProviderName:
		t = openai.New(apiKey, "")
	case google.ProviderName:
		g, err := google.New(ctx, apiKey, "")
		if err != nil {
			return nil, atmerr.Wrap(err, atmerr.KindConfiguration, "failed to create google client", nil)
		}
		t = g
	}

	return WithRetry(t, cfg.Retry), nil
}
