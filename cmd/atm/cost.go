package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/report"
	"github.com/agentic-turing/atm/pkg/store"
)

// CostMarkdownFileName is the markdown cost report written by `atm cost --markdown`
const CostMarkdownFileName = "cost_report.md"

// CostConfig holds the options of the cost command
type CostConfig struct {
	JSON     bool
	Markdown bool
	Runs     int
}

// NewCostConfig creates a CostConfig with default values
func NewCostConfig() *CostConfig {
	return &CostConfig{Runs: 10}
}

func newCostCmd() *cobra.Command {
	defaults := NewCostConfig()
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show the recorded API cost of every run",
		Long: `Summarize the API calls recorded in the run history database: totals, cost by
stage and by noise level, and the most recent runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runCost(cmd.Context(), cfg, getCostConfigFromFlags(cmd), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("json", defaults.JSON, "Print the summary as JSON")
	cmd.Flags().Bool("markdown", defaults.Markdown, "Also write "+CostMarkdownFileName+" to the results directory")
	cmd.Flags().Int("runs", defaults.Runs, "Number of recent runs to list (0 to hide)")
	return cmd
}

func getCostConfigFromFlags(cmd *cobra.Command) *CostConfig {
	cc := NewCostConfig()
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		cc.JSON = v
	}
	if v, err := cmd.Flags().GetBool("markdown"); err == nil {
		cc.Markdown = v
	}
	if v, err := cmd.Flags().GetInt("runs"); err == nil {
		cc.Runs = v
	}
	return cc
}

func runCost(ctx context.Context, cfg *config.Config, cc *CostConfig, out io.Writer) error {
	if _, err := os.Stat(cfg.Paths.Database); os.IsNotExist(err) {
		return atmerr.New(atmerr.KindFileOperation, "no run history yet, run `atm run` first",
			atmerr.Details{"path": cfg.Paths.Database})
	}
	st, err := store.Open(ctx, cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := st.CostSummary(ctx, cfg.CostTracking.Currency)
	if err != nil {
		return err
	}

	if cc.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	presenter.CostSummary(summary)

	if cc.Runs > 0 {
		runs, err := st.ListRuns(ctx, cc.Runs)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			presenter.Section("Recent runs")
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNOISE\tSTATUS\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%d%%\t%s\t%s\n", run.ID, run.NoiseLevel, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			w.Flush()
		}
	}

	if cc.Markdown {
		path := filepath.Join(cfg.Paths.Results, CostMarkdownFileName)
		if err := os.MkdirAll(cfg.Paths.Results, 0o755); err != nil {
			return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create results directory", atmerr.Details{"path": cfg.Paths.Results})
		}
		f, err := os.Create(path)
		if err != nil {
			return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create cost report", atmerr.Details{"path": path})
		}
		if err := report.WriteCostMarkdown(f, summary); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to close cost report", atmerr.Details{"path": path})
		}
		presenter.Success("Cost report written to " + path)
	}
	return nil
}
