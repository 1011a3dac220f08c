package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/llm"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/pipeline"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/skills"
	"github.com/agentic-turing/atm/pkg/store"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// RunConfig holds the options of the run command
type RunConfig struct {
	Noise       int
	All         bool
	Concurrency int
	Sanitize    bool
	NoHistory   bool
}

// NewRunConfig creates a RunConfig with default values
func NewRunConfig() *RunConfig {
	return &RunConfig{
		Noise:       -1,
		Concurrency: 0,
	}
}

func newRunCmd() *cobra.Command {
	defaults := NewRunConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the translation chain for one or every noise level",
		Long: `Run the English to French to Hebrew to English chain. Every stage output is
written to <outputs>/noise_<N>/ and every API call is priced and recorded.

Examples:
  atm run --noise 25
  atm run --all --concurrency 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc := getRunConfigFromFlags(cmd)
			if !rc.All && rc.Noise < 0 {
				cmd.Help()
				return errors.New("either --noise or --all is required")
			}
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			translator, err := llm.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return runChains(cmd.Context(), cfg, rc, translator)
		},
	}

	cmd.Flags().IntP("noise", "n", defaults.Noise, "Noise level to run, in percent")
	cmd.Flags().Bool("all", defaults.All, "Run every configured noise level")
	cmd.Flags().IntP("concurrency", "c", defaults.Concurrency, "Chains to run in parallel with --all (default from config)")
	cmd.Flags().Bool("sanitize", defaults.Sanitize, "Strip invisible characters and homoglyphs from the input first")
	cmd.Flags().Bool("no-history", defaults.NoHistory, "Do not record runs and API calls in the database")
	cmd.MarkFlagsMutuallyExclusive("noise", "all")
	return cmd
}

func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	rc := NewRunConfig()
	if noise, err := cmd.Flags().GetInt("noise"); err == nil {
		rc.Noise = noise
	}
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		rc.All = all
	}
	if concurrency, err := cmd.Flags().GetInt("concurrency"); err == nil {
		rc.Concurrency = concurrency
	}
	if sanitize, err := cmd.Flags().GetBool("sanitize"); err == nil {
		rc.Sanitize = sanitize
	}
	if noHistory, err := cmd.Flags().GetBool("no-history"); err == nil {
		rc.NoHistory = noHistory
	}
	return rc
}

// checkSkills fails early when a chain skill is missing or not allowed
func checkSkills(discovery *skills.Discovery, cfg *config.Config, stages []pipeline.Stage) error {
	for _, stage := range stages {
		skill, err := discovery.Load(stage.Skill)
		if err != nil {
			return atmerr.Wrap(err, atmerr.KindSkillNotFound, "missing chain skill, run `atm skill init` to create the default translators",
				atmerr.Details{"skill": stage.Skill, "dirs": cfg.Skills.Dirs})
		}
		if len(skills.FilterByAllowlist(map[string]*skills.Skill{stage.Skill: skill}, cfg.Skills.Allowed)) == 0 {
			return atmerr.New(atmerr.KindConfiguration, "skill not allowed: "+stage.Skill, atmerr.Details{
				"skill":   stage.Skill,
				"allowed": cfg.Skills.Allowed,
			})
		}
	}
	return nil
}

func runChains(ctx context.Context, cfg *config.Config, rc *RunConfig, translator llmtypes.Translator) error {
	log := logger.G(ctx)

	discovery, err := newDiscovery(cfg)
	if err != nil {
		return err
	}
	if err := checkSkills(discovery, cfg, pipeline.DefaultStages); err != nil {
		return err
	}

	var trackerOpts []cost.Option
	runnerOpts := []pipeline.Option{
		pipeline.WithPresenter(presenter.Default()),
		pipeline.WithSanitizer(rc.Sanitize),
	}
	if !rc.NoHistory {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.Database), 0o755); err != nil {
			return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create database directory", atmerr.Details{"path": cfg.Paths.Database})
		}
		st, err := store.Open(ctx, cfg.Paths.Database)
		if err != nil {
			return err
		}
		defer st.Close()
		trackerOpts = append(trackerOpts, cost.WithSink(st))
		runnerOpts = append(runnerOpts, pipeline.WithRecorder(st))
	}
	tracker := cost.NewTracker(cfg.CostTracking, trackerOpts...)
	runnerOpts = append(runnerOpts, pipeline.WithTracker(tracker))

	runner := pipeline.NewRunner(cfg, translator, discovery, runnerOpts...)

	var (
		results []pipeline.Result
		runErr  error
	)
	if rc.All {
		concurrency := rc.Concurrency
		if concurrency < 1 {
			concurrency = cfg.Concurrency
		}
		log.WithField("concurrency", concurrency).Info("running every noise level")
		results, runErr = runner.RunAll(ctx, cfg.Experiment.NoiseLevels, concurrency)
	} else {
		var res pipeline.Result
		res, runErr = runner.RunChain(ctx, rc.Noise)
		if runErr == nil {
			results = append(results, res)
		}
	}

	if tracker.Enabled() && len(tracker.Calls()) > 0 {
		path := cfg.ResultsFile(cfg.CostTracking.ReportFile)
		if err := tracker.SaveReport(path, cfg.CostTracking.IncludeBreakdown); err != nil {
			log.WithError(err).Warn("failed to save cost report")
		} else {
			log.WithField("path", path).Debug("cost report saved")
		}
		presenter.CostSummary(tracker.Summary())
	}

	if len(results) > 0 {
		presenter.Success(fmt.Sprintf("Completed %d translation chain(s), outputs in %s", len(results), cfg.Paths.Outputs))
	}
	return runErr
}
