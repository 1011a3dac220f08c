// Package config loads the atm configuration from viper (config.yaml, ATM_
// environment variables and bound CLI flags) into a typed Config.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultOriginalSentence is the clean sentence the experiment starts from
const DefaultOriginalSentence = "The artificial intelligence system can efficiently process natural language and understand complex semantic relationships within textual data."

// DefaultNoiseLevels are the typo percentages exercised by --all
var DefaultNoiseLevels = []int{0, 10, 20, 25, 30, 40, 50}

// Config is the fully resolved configuration of an atm invocation
type Config struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Concurrency int     `mapstructure:"concurrency"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	Paths        PathsConfig        `mapstructure:"paths"`
	Experiment   ExperimentConfig   `mapstructure:"experiment"`
	Skills       SkillsConfig       `mapstructure:"skills"`
	Retry        RetryConfig        `mapstructure:"retry"`
	CostTracking CostTrackingConfig `mapstructure:"cost_tracking"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`

	// API keys are read from the provider's conventional environment variables.
	APIKeys APIKeys `mapstructure:"-"`
}

// PathsConfig holds the on-disk layout of an experiment
type PathsConfig struct {
	Skills   string `mapstructure:"skills"`
	Outputs  string `mapstructure:"outputs"`
	Results  string `mapstructure:"results"`
	Database string `mapstructure:"database"`
}

// ExperimentConfig describes the sentence under test and its noise levels
type ExperimentConfig struct {
	OriginalSentence string `mapstructure:"original_sentence"`
	NoiseLevels      []int  `mapstructure:"noise_levels"`
	Seed             int64  `mapstructure:"seed"`
	// NoisyInputs are hand-written corrupted inputs keyed by noise level.
	// Levels without an entry are generated.
	NoisyInputs map[int]string `mapstructure:"-"`
}

// SkillsConfig selects where chain skills are discovered
type SkillsConfig struct {
	Dirs    []string `mapstructure:"dirs"`
	Allowed []string `mapstructure:"allowed"`
}

// RetryConfig controls retries of translator calls. Delays are in milliseconds.
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay"`
	MaxDelay     int    `mapstructure:"max_delay"`
	BackoffType  string `mapstructure:"backoff_type"`
}

// Pricing is a per-million-token price pair
type Pricing struct {
	Input  float64 `mapstructure:"input" json:"input"`
	Output float64 `mapstructure:"output" json:"output"`
}

// CostTrackingConfig controls token cost accounting
type CostTrackingConfig struct {
	Enabled          bool               `mapstructure:"enabled"`
	Currency         string             `mapstructure:"currency"`
	ReportFile       string             `mapstructure:"report_file"`
	IncludeBreakdown bool               `mapstructure:"include_breakdown"`
	Pricing          map[string]Pricing `mapstructure:"pricing"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	SamplerType  string  `mapstructure:"sampler_type"`
	SamplerRatio float64 `mapstructure:"sampler_ratio"`
}

// DashboardConfig controls the results API server
type DashboardConfig struct {
	Addr string `mapstructure:"addr"`
}

// APIKeys holds provider credentials
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// DefaultModels is the model used for each provider when none is configured
var DefaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o",
	"google":    "gemini-2.5-flash",
}

// DefaultRetryConfig is three attempts with exponential backoff between 1s and 10s
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("concurrency", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")

	v.SetDefault("paths.skills", "./skills")
	v.SetDefault("paths.outputs", "./outputs")
	v.SetDefault("paths.results", "./results")
	v.SetDefault("paths.database", "./results/atm.db")

	v.SetDefault("experiment.original_sentence", DefaultOriginalSentence)
	v.SetDefault("experiment.noise_levels", DefaultNoiseLevels)
	v.SetDefault("experiment.seed", 42)

	v.SetDefault("retry.attempts", DefaultRetryConfig.Attempts)
	v.SetDefault("retry.initial_delay", DefaultRetryConfig.InitialDelay)
	v.SetDefault("retry.max_delay", DefaultRetryConfig.MaxDelay)
	v.SetDefault("retry.backoff_type", DefaultRetryConfig.BackoffType)

	v.SetDefault("cost_tracking.enabled", true)
	v.SetDefault("cost_tracking.currency", "USD")
	v.SetDefault("cost_tracking.report_file", "cost_analysis.json")
	v.SetDefault("cost_tracking.include_breakdown", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler_type", "always")
	v.SetDefault("tracing.sampler_ratio", 1.0)

	v.SetDefault("dashboard.addr", "127.0.0.1:8501")
}

// Init wires the global viper instance: ATM_ environment prefix and config.yaml
// in $HOME/.atm or the working directory. A missing config file is not an error.
func Init() {
	viper.SetEnvPrefix("ATM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.atm")
	viper.AddConfigPath(".")

	SetDefaults(viper.GetViper())
	_ = viper.ReadInConfig()
}

// Load builds a Config from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a Config from v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, atmerr.Wrap(err, atmerr.KindConfiguration, "failed to unmarshal configuration", nil)
	}

	noisy, err := decodeNoisyInputs(v.Get("experiment.noisy_inputs"))
	if err != nil {
		return nil, err
	}
	cfg.Experiment.NoisyInputs = noisy

	if len(cfg.Experiment.NoiseLevels) == 0 {
		cfg.Experiment.NoiseLevels = append([]int(nil), DefaultNoiseLevels...)
	}
	sort.Ints(cfg.Experiment.NoiseLevels)

	if cfg.Model == "" {
		cfg.Model = DefaultModels[cfg.Provider]
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if len(cfg.Skills.Dirs) == 0 {
		cfg.Skills.Dirs = []string{cfg.Paths.Skills}
	}

	cfg.APIKeys = APIKeys{
		Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAI:    os.Getenv("OPENAI_API_KEY"),
		Google:    firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeNoisyInputs weakly decodes the noisy_inputs mapping. YAML and env
// sources deliver the level keys as strings, so they are converted to ints.
func decodeNoisyInputs(raw any) (map[int]string, error) {
	out := map[int]string{}
	if raw == nil {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create noisy_inputs decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, atmerr.Wrap(err, atmerr.KindConfiguration, "invalid experiment.noisy_inputs", nil)
	}
	return out, nil
}

// Validate checks the invariants that every command relies on
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return atmerr.New(atmerr.KindConfiguration, "max_tokens must be positive", atmerr.Details{"max_tokens": c.MaxTokens})
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return atmerr.New(atmerr.KindConfiguration, "temperature out of range", atmerr.Details{"temperature": c.Temperature})
	}
	for _, level := range c.Experiment.NoiseLevels {
		if level < 0 || level > 100 {
			return atmerr.New(atmerr.KindConfiguration, "noise level out of range", atmerr.Details{"noise_level": level})
		}
	}
	if c.Retry.Attempts < 0 {
		return atmerr.New(atmerr.KindConfiguration, "retry.attempts cannot be negative", atmerr.Details{"attempts": c.Retry.Attempts})
	}
	switch c.Retry.BackoffType {
	case "", "fixed", "exponential":
	default:
		return atmerr.New(atmerr.KindConfiguration, "unknown retry backoff type", atmerr.Details{"backoff_type": c.Retry.BackoffType})
	}
	return nil
}

// APIKeyFor returns the key configured for provider
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return c.APIKeys.Anthropic
	case "openai":
		return c.APIKeys.OpenAI
	case "google":
		return c.APIKeys.Google
	}
	return ""
}

// OutputDir returns the per-level output directory
func (c *Config) OutputDir(level int) string {
	return filepath.Join(c.Paths.Outputs, NoiseDirName(level))
}

// ResultsFile returns a path inside the results directory
func (c *Config) ResultsFile(name string) string {
	return filepath.Join(c.Paths.Results, name)
}

// NoiseDirName is the directory name used for a noise level
func NoiseDirName(level int) string {
	return "noise_" + strconv.Itoa(level)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
