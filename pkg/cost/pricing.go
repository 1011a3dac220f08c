package cost

import (
	"strings"

	"github.com/agentic-turing/atm/pkg/config"
)

// Model families with a price entry
const (
	FamilySonnet      = "sonnet"
	FamilyOpus        = "opus"
	FamilyHaiku       = "haiku"
	FamilyGPT4o       = "gpt-4o"
	FamilyGPT4oMini   = "gpt-4o-mini"
	FamilyGeminiFlash = "gemini-flash"
	FamilyGeminiPro   = "gemini-pro"
)

// DefaultPricing is USD per million tokens by model family
var DefaultPricing = map[string]config.Pricing{
	FamilySonnet:      {Input: 3.00, Output: 15.00},
	FamilyOpus:        {Input: 15.00, Output: 75.00},
	FamilyHaiku:       {Input: 0.80, Output: 4.00},
	FamilyGPT4o:       {Input: 2.50, Output: 10.00},
	FamilyGPT4oMini:   {Input: 0.15, Output: 0.60},
	FamilyGeminiFlash: {Input: 0.30, Output: 2.50},
	FamilyGeminiPro:   {Input: 1.25, Output: 10.00},
}

// Family maps a model name onto its pricing family. Unknown models are priced
// as sonnet.
func Family(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gpt-4o-mini"):
		return FamilyGPT4oMini
	case strings.Contains(m, "gpt-4o"):
		return FamilyGPT4o
	case strings.Contains(m, "gemini") && strings.Contains(m, "flash"):
		return FamilyGeminiFlash
	case strings.Contains(m, "gemini") && strings.Contains(m, "pro"):
		return FamilyGeminiPro
	case strings.Contains(m, "opus"):
		return FamilyOpus
	case strings.Contains(m, "haiku"):
		return FamilyHaiku
	}
	return FamilySonnet
}

// PriceTable resolves prices with configured overrides taking precedence
type PriceTable map[string]config.Pricing

// NewPriceTable merges overrides onto DefaultPricing
func NewPriceTable(overrides map[string]config.Pricing) PriceTable {
	table := make(PriceTable, len(DefaultPricing)+len(overrides))
	for k, v := range DefaultPricing {
		table[k] = v
	}
	for k, v := range overrides {
		table[strings.ToLower(k)] = v
	}
	return table
}

// Lookup returns the price for model
func (p PriceTable) Lookup(model string) config.Pricing {
	if price, ok := p[Family(model)]; ok {
		return price
	}
	return DefaultPricing[FamilySonnet]
}

// Cost computes the USD cost of a call
func (p PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	price := p.Lookup(model)
	return float64(inputTokens)/1_000_000*price.Input + float64(outputTokens)/1_000_000*price.Output
}
