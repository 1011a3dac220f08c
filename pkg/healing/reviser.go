package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/llm"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

const revisionSystem = "You repair English sentences that were damaged by a chain of machine translations. " +
	"Return ONLY the repaired sentence."

// LLMReviser asks a model to repair the output using the source sentence.
type LLMReviser struct {
	Translator  llmtypes.Translator
	Model       string
	MaxTokens   int
	Temperature float64
}

// Revise implements Reviser.
func (r *LLMReviser) Revise(ctx context.Context, source, current string, detection Detection) (string, error) {
	resp, err := r.Translator.Complete(ctx, llmtypes.Request{
		Model:       r.Model,
		System:      revisionSystem,
		Prompt:      revisionPrompt(source, current, detection),
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		return "", err
	}
	text := llm.CleanOutput(resp.Text)
	if text == "" {
		return "", atmerr.New(atmerr.KindTranslation, "model returned an empty revision",
			atmerr.Details{"provider": r.Translator.Name()})
	}
	return text, nil
}

func revisionPrompt(source, current string, detection Detection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference sentence:\n%s\n\n", source)
	fmt.Fprintf(&b, "Damaged sentence:\n%s\n\n", current)
	fmt.Fprintf(&b, "Detected problem: %s (%s).\n", detection.Type, detection.Severity)
	if len(detection.Locations) > 0 {
		fmt.Fprintf(&b, "Affected segments: %s\n", strings.Join(detection.Locations, "; "))
	}
	b.WriteString("\nRewrite the damaged sentence so it carries the meaning of the reference sentence.")
	return b.String()
}
