package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/pipeline"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/report"
)

// AnalyzerConfig holds where an analyzer reads from and writes to
type AnalyzerConfig struct {
	DataPath string
	Output   string
}

func addAnalyzerFlags(cmd *cobra.Command, dataHelp string) {
	cmd.Flags().String("data-path", "", dataHelp)
	cmd.Flags().String("output", "", "Directory the report is written to (default: the results directory)")
}

func getAnalyzerConfigFromFlags(cmd *cobra.Command, defaultData string, cfg *config.Config) *AnalyzerConfig {
	ac := &AnalyzerConfig{DataPath: defaultData, Output: cfg.Paths.Results}
	if dataPath, err := cmd.Flags().GetString("data-path"); err == nil && dataPath != "" {
		ac.DataPath = dataPath
	}
	if output, err := cmd.Flags().GetString("output"); err == nil && output != "" {
		ac.Output = output
	}
	return ac
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Measure the semantic drift of every noise level",
		Long: `Compare the final English output of every noise level against the original
sentence with local metrics (TF-IDF cosine distance, text similarity, word
overlap and length similarity) and write analysis_results_local.json and
semantic_drift_report.md.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			ac := getAnalyzerConfigFromFlags(cmd, cfg.Paths.Outputs, cfg)
			_, err = runAnalyze(cmd.Context(), cfg, ac)
			return err
		},
	}
	addAnalyzerFlags(cmd, "Directory holding the chain outputs (default: the outputs directory)")
	return cmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, ac *AnalyzerConfig) (*analysis.Results, error) {
	a := analysis.NewAnalyzer(cfg)
	a.OutputsDir = ac.DataPath
	a.FinalFile = pipeline.FinalFile(pipeline.DefaultStages)

	results, err := a.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	jsonPath, mdPath, err := analysis.Save(ac.Output, results)
	if err != nil {
		return nil, err
	}

	presenter.Section("Semantic drift")
	presenter.Info(results.Result.Summary)
	presenter.Success(fmt.Sprintf("Results written to %s and %s", jsonPath, mdPath))
	return results, nil
}

// offlineAnalyzer is one report computed from the drift results
type offlineAnalyzer struct {
	name string
	run  func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error)
}

// runOfflineAnalyzers loads the drift results from ac.DataPath and runs every
// analyzer over them. A failing analyzer does not stop the others.
func runOfflineAnalyzers(ctx context.Context, ac *AnalyzerConfig, analyzers ...offlineAnalyzer) error {
	results, err := analysis.LoadResults(ac.DataPath)
	if err != nil {
		return errors.Wrap(err, "run `atm analyze` first")
	}

	var errs *multierror.Error
	for i, a := range analyzers {
		if i > 0 {
			presenter.Separator()
		}
		log := logger.G(ctx).WithField("analyzer", a.name)
		log.Info("running analyzer")

		res, path, err := a.run(ctx, results, ac.Output)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("analyzer failed")
			presenter.Error(err, a.name)
			errs = multierror.Append(errs, errors.Wrap(err, a.name))
			continue
		}

		presenter.Section(a.name)
		if res.Summary != "" {
			presenter.Info(res.Summary)
		}
		presenter.Success("Report written to " + path)
	}
	return errs.ErrorOrNil()
}
