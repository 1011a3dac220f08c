package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/adversarial"
	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/healing"
	"github.com/agentic-turing/atm/pkg/infotheory"
	"github.com/agentic-turing/atm/pkg/llm"
	"github.com/agentic-turing/atm/pkg/pipeline"
	"github.com/agentic-turing/atm/pkg/report"
	"github.com/agentic-turing/atm/pkg/resonance"
	"github.com/agentic-turing/atm/pkg/sensitivity"
)

const resultsDataHelp = "Directory holding analysis_results_local.json (default: the results directory)"

func infoTheoryAnalyzer(outputsDir string) offlineAnalyzer {
	return offlineAnalyzer{
		name: "Information theory",
		run: func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error) {
			intermediates, err := infotheory.LoadIntermediates(ctx, outputsDir, results.Levels(),
				pipeline.IntermediateFiles(pipeline.DefaultStages))
			if err != nil {
				return report.Result{}, "", err
			}
			a := &infotheory.Analyzer{
				Results:       results,
				Intermediates: intermediates,
				StageNames:    pipeline.SkillNames(pipeline.DefaultStages),
				Now:           time.Now,
			}
			rep, err := a.Analyze(ctx)
			if err != nil {
				return report.Result{}, "", err
			}
			path, err := infotheory.Save(output, rep)
			return rep.Result, path, err
		},
	}
}

func healingAnalyzer(reviser healing.Reviser) offlineAnalyzer {
	return offlineAnalyzer{
		name: "Self-healing",
		run: func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error) {
			rep, err := healing.NewAnalyzer(results, healing.NewHealer(reviser)).Analyze(ctx)
			if err != nil {
				return report.Result{}, "", err
			}
			path, err := healing.Save(output, rep)
			return rep.Result, path, err
		},
	}
}

func robustnessAnalyzer(seed int64) offlineAnalyzer {
	return offlineAnalyzer{
		name: "Adversarial robustness",
		run: func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error) {
			rep, err := adversarial.NewEvaluator(results, seed).Analyze(ctx)
			if err != nil {
				return report.Result{}, "", err
			}
			path, err := adversarial.Save(output, rep)
			return rep.Result, path, err
		},
	}
}

func resonanceAnalyzer(seed int64) offlineAnalyzer {
	return offlineAnalyzer{
		name: "Stochastic resonance",
		run: func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error) {
			a := resonance.NewAnalyzer(results)
			a.Seed = seed
			rep, err := a.Analyze(ctx)
			if err != nil {
				return report.Result{}, "", err
			}
			path, err := resonance.Save(output, rep)
			return rep.Result, path, err
		},
	}
}

func sensitivityAnalyzer(iterations int, seed int64) offlineAnalyzer {
	return offlineAnalyzer{
		name: "Sensitivity",
		run: func(ctx context.Context, results *analysis.Results, output string) (report.Result, string, error) {
			a := sensitivity.NewAnalyzer(results)
			a.Iterations = iterations
			a.Seed = seed
			rep, err := a.Analyze(ctx)
			if err != nil {
				return report.Result{}, "", err
			}
			path, err := sensitivity.Save(output, rep)
			return rep.Result, path, err
		},
	}
}

// newOfflineCmd builds a command that runs the analyzers built by build over
// the drift results.
func newOfflineCmd(use, short, long string, build func(cmd *cobra.Command, cfg *config.Config) ([]offlineAnalyzer, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			analyzers, err := build(cmd, cfg)
			if err != nil {
				return err
			}
			ac := getAnalyzerConfigFromFlags(cmd, cfg.Paths.Results, cfg)
			return runOfflineAnalyzers(cmd.Context(), ac, analyzers...)
		},
	}
	addAnalyzerFlags(cmd, resultsDataHelp)
	return cmd
}

func newInfoTheoryCmd() *cobra.Command {
	return newOfflineCmd("infotheory",
		"Information-theoretic analysis of the drift",
		`Compute entropy, mutual information, divergences, the information bottleneck
of the chain and transfer entropy between its agents. Writes
information_theory_analysis.json.`,
		func(_ *cobra.Command, cfg *config.Config) ([]offlineAnalyzer, error) {
			return []offlineAnalyzer{infoTheoryAnalyzer(cfg.Paths.Outputs)}, nil
		})
}

func newHealCmd() *cobra.Command {
	cmd := newOfflineCmd("heal",
		"Detect and repair drifted translations",
		`Estimate the confidence of every final output, classify its errors and apply
correction strategies until the confidence threshold is met. With --llm the
configured provider is asked to re-translate first. Writes
self_healing_analysis.json.`,
		func(cmd *cobra.Command, cfg *config.Config) ([]offlineAnalyzer, error) {
			useLLM, _ := cmd.Flags().GetBool("llm")
			if !useLLM {
				return []offlineAnalyzer{healingAnalyzer(nil)}, nil
			}
			translator, err := llm.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return nil, err
			}
			return []offlineAnalyzer{healingAnalyzer(&healing.LLMReviser{
				Translator:  translator,
				Model:       cfg.Model,
				MaxTokens:   cfg.MaxTokens,
				Temperature: cfg.Temperature,
			})}, nil
		})
	cmd.Flags().Bool("llm", false, "Use the configured LLM provider to re-translate low-confidence outputs")
	return cmd
}

func newRobustnessCmd() *cobra.Command {
	cmd := newOfflineCmd("robustness",
		"Score the pipeline against adversarial perturbations",
		`Generate character, word and structural attacks on the original sentence,
measure their effectiveness and grade the robustness of the pipeline, before
and after sanitization. Writes adversarial_robustness.json.`,
		func(cmd *cobra.Command, _ *config.Config) ([]offlineAnalyzer, error) {
			seed, _ := cmd.Flags().GetInt64("seed")
			return []offlineAnalyzer{robustnessAnalyzer(seed)}, nil
		})
	cmd.Flags().Int64("seed", adversarial.DefaultSeed, "Seed of the attack generator")
	return cmd
}

func newResonanceCmd() *cobra.Command {
	cmd := newOfflineCmd("resonance",
		"Look for stochastic resonance in the similarity curve",
		`Compute the signal-to-noise ratio of every noise level, test for a noise level
that improves on the noiseless chain, characterise the SNR curve and fit a
sigmoid attention threshold. Writes stochastic_resonance_analysis.json.`,
		func(cmd *cobra.Command, _ *config.Config) ([]offlineAnalyzer, error) {
			seed, _ := cmd.Flags().GetInt64("seed")
			return []offlineAnalyzer{resonanceAnalyzer(seed)}, nil
		})
	cmd.Flags().Int64("seed", resonance.DefaultSeed, "Seed of the bootstrap")
	return cmd
}

func newSensitivityCmd() *cobra.Command {
	cmd := newOfflineCmd("sensitivity",
		"Check how much the results depend on the measurement choices",
		`Sweep the embedding dimension and n-gram range, bootstrap the mean cosine
distance, run a one-way ANOVA across noise levels and compute effect sizes.
Writes sensitivity_analysis.json.`,
		func(cmd *cobra.Command, _ *config.Config) ([]offlineAnalyzer, error) {
			iterations, _ := cmd.Flags().GetInt("iterations")
			seed, _ := cmd.Flags().GetInt64("seed")
			return []offlineAnalyzer{sensitivityAnalyzer(iterations, seed)}, nil
		})
	cmd.Flags().Int("iterations", sensitivity.DefaultIterations, "Bootstrap resamples")
	cmd.Flags().Int64("seed", sensitivity.DefaultSeed, "Seed of the bootstrap")
	return cmd
}

func newInnovationsCmd() *cobra.Command {
	return newOfflineCmd("innovations",
		"Run every offline analyzer in sequence",
		`Run the information theory, self-healing, adversarial robustness, stochastic
resonance and sensitivity analyzers over the drift results. An analyzer that
fails is reported and the others still run.`,
		func(_ *cobra.Command, cfg *config.Config) ([]offlineAnalyzer, error) {
			return []offlineAnalyzer{
				infoTheoryAnalyzer(cfg.Paths.Outputs),
				healingAnalyzer(nil),
				robustnessAnalyzer(adversarial.DefaultSeed),
				resonanceAnalyzer(resonance.DefaultSeed),
				sensitivityAnalyzer(sensitivity.DefaultIterations, sensitivity.DefaultSeed),
			}, nil
		})
}
