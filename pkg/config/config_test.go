package config

import (
	"strings"
	"testing"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := LoadFrom(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 1024, cfg.MaxTokens)
	assert.Equal(t, 0.0, cfg.Temperature)
	assert.Equal(t, DefaultNoiseLevels, cfg.Experiment.NoiseLevels)
	assert.Equal(t, DefaultOriginalSentence, cfg.Experiment.OriginalSentence)
	assert.Equal(t, DefaultRetryConfig, cfg.Retry)
	assert.Equal(t, []string{"./skills"}, cfg.Skills.Dirs)
	assert.True(t, cfg.CostTracking.Enabled)
	assert.Equal(t, "USD", cfg.CostTracking.Currency)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, "sk-test", cfg.APIKeyFor("anthropic"))
	assert.Empty(t, cfg.Experiment.NoisyInputs)
}

func TestLoadFrom_NoisyInputs(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, `
experiment:
  noise_levels: [25, 0]
  noisy_inputs:
    "0": "clean text"
    "25": "clena txet"
`))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 25}, cfg.Experiment.NoiseLevels)
	assert.Equal(t, map[int]string{0: "clean text", 25: "clena txet"}, cfg.Experiment.NoisyInputs)
}

func TestLoadFrom_Pricing(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, `
cost_tracking:
  pricing:
    sonnet:
      input: 4
      output: 20
`))
	require.NoError(t, err)
	assert.Equal(t, Pricing{Input: 4, Output: 20}, cfg.CostTracking.Pricing["sonnet"])
}

func TestLoadFrom_ProviderDefaultModel(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"anthropic", "", "claude-sonnet-4-20250514"},
		{"openai", "provider: openai", "gpt-4o"},
		{"google", "provider: google", "gemini-2.5-flash"},
		{"explicit model wins", "provider: openai\nmodel: gpt-4o-mini", "gpt-4o-mini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(newViper(t, tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Model)
		})
	}
}

func TestLoadFrom_RetryAttempts(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, "retry:\n  attempts: 0"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retry.Attempts)
	assert.Equal(t, DefaultRetryConfig.BackoffType, cfg.Retry.BackoffType)

	cfg, err = LoadFrom(newViper(t, "retry:\n  attempts: 5"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, DefaultRetryConfig.MaxDelay, cfg.Retry.MaxDelay)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative max tokens", "max_tokens: -1"},
		{"temperature too high", "temperature: 3.5"},
		{"noise level out of range", "experiment:\n  noise_levels: [0, 150]"},
		{"unknown backoff", "retry:\n  attempts: 2\n  backoff_type: linear"},
		{"negative retry attempts", "retry:\n  attempts: -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(newViper(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, atmerr.ErrConfiguration))
		})
	}
}

func TestPaths(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, "paths:\n  outputs: /tmp/out\n  results: /tmp/res"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out/noise_25", cfg.OutputDir(25))
	assert.Equal(t, "/tmp/res/analysis_results_local.json", cfg.ResultsFile("analysis_results_local.json"))
	assert.Equal(t, "noise_0", NoiseDirName(0))
}
