// Package llm holds the provider-neutral types shared by the translator
// clients and their callers.
package llm

import "context"

// Request is a single-turn completion request
type Request struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Response is the text a model produced for a Request
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Translator sends a prompt to a model and returns its reply
type Translator interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// Name identifies the provider, e.g. "anthropic"
	Name() string
}

// TranslatorFunc adapts a function to the Translator interface
type TranslatorFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f
func (f TranslatorFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Name returns "func"
func (f TranslatorFunc) Name() string {
	return "func"
}
