package llm

// Usage represents token usage reported for a single model call
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the total number of tokens used
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Add returns the sum of u and other
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}
