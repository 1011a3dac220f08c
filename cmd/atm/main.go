package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/telemetry"
)

const exitInterrupted = 130

type configKey struct{}

// finalizers release what the pre-run hook opened; they run after Execute
// whether or not the command failed.
var finalizers []func()

func init() {
	config.Init()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atm",
		Short: "Agentic Turing Machine: measure semantic drift through a chain of translation agents",
		Long: `atm passes a noisy English sentence through a chain of skill-driven translation
agents (English to French to Hebrew to English) and measures how far the final
English drifts from the clean original as the noise grows.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default is ./config.yaml or $HOME/.atm/config.yaml)")
	flags.String("provider", "", "LLM provider to use (anthropic, openai or google)")
	flags.String("model", "", "LLM model to use (overrides config)")
	flags.Int("max-tokens", 0, "Maximum tokens per translation (overrides config)")
	flags.Float64("temperature", 0, "Sampling temperature (overrides config)")
	flags.String("log-level", "", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "", "Log format (fmt or json)")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
	flags.String("skills-dir", "", "Directory holding the translation skills")
	flags.String("outputs-dir", "", "Directory the chain writes its per-level outputs to")
	flags.String("results-dir", "", "Directory analysis reports are written to")
	flags.String("db", "", "Path of the run history database")
	flags.BoolP("quiet", "q", false, "Suppress non-error output")

	bindConfigFlags(viper.GetViper(), flags, map[string]string{
		"provider":       "provider",
		"model":          "model",
		"max_tokens":     "max-tokens",
		"temperature":    "temperature",
		"log_level":      "log-level",
		"log_format":     "log-format",
		"log_file":       "log-file",
		"paths.skills":   "skills-dir",
		"paths.outputs":  "outputs-dir",
		"paths.results":  "results-dir",
		"paths.database": "db",
	})

	cmd.AddCommand(
		newRunCmd(),
		newAnalyzeCmd(),
		newInfoTheoryCmd(),
		newHealCmd(),
		newRobustnessCmd(),
		newResonanceCmd(),
		newSensitivityCmd(),
		newInnovationsCmd(),
		newCostCmd(),
		newSkillCmd(),
		newSchemaCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return cmd
}

// bindConfigFlags makes each flag override its configuration key when set
func bindConfigFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if flag := flags.Lookup(name); flag != nil {
			_ = v.BindPFlag(key, flag)
		}
	}
}

// setup loads the configuration and prepares logging and tracing for the
// command about to run.
func setup(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		presenter.SetQuiet(true)
	}

	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	logger.SetLogFormat(cfg.LogFormat)
	if cfg.LogFile != "" {
		closer, err := logger.SetLogFile(cfg.LogFile)
		if err != nil {
			return err
		}
		finalizers = append(finalizers, func() { closer.Close() })
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
	} else {
		finalizers = append(finalizers, func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.G(ctx).WithError(err).Debug("failed to flush traces")
			}
		})
	}

	cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
	return nil
}

// configFrom returns the configuration loaded by setup
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg, nil
	}
	return config.Load()
}

func runFinalizers() {
	for i := len(finalizers) - 1; i >= 0; i-- {
		finalizers[i]()
	}
	finalizers = nil
}

// exitCode maps the outcome of a command onto the process exit status
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	runFinalizers()

	code := exitCode(ctx, err)
	switch code {
	case exitInterrupted:
		presenter.Warning("interrupted")
	case 1:
		presenter.Error(err, "")
	}
	stop()
	os.Exit(code)
}
