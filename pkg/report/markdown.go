package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/stats"
)

// DriftRow holds the metrics of one noise level.
type DriftRow struct {
	Level            int
	Final            string
	CosineDistance   float64
	TextSimilarity   float64
	WordOverlap      float64
	LengthSimilarity float64
}

// MetricSummary names a metric summary for the report.
type MetricSummary struct {
	Name    string
	Better  string
	Summary stats.Summary
}

// Drift is the input of the semantic drift markdown report.
type Drift struct {
	Original    string
	GeneratedAt time.Time
	Rows        []DriftRow
	Summaries   []MetricSummary
}

// WriteDriftMarkdown renders the drift report: a metric table, a summary
// table, one chart per metric and a word diff per noise level.
func WriteDriftMarkdown(w io.Writer, d Drift) error {
	md := markdown.NewMarkdown(w)

	md.H1("Semantic Drift Report")
	md.PlainText("")
	md.PlainTextf("Generated %s. Chain: English → French → Hebrew → English.", d.GeneratedAt.Format(time.RFC3339))
	md.PlainText("")
	md.H2("Original")
	md.PlainText("")
	md.PlainText("> " + d.Original)
	md.PlainText("")

	rows := make([][]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		rows = append(rows, []string{
			strconv.Itoa(r.Level) + "%",
			fmtFloat(r.CosineDistance),
			fmtFloat(r.TextSimilarity),
			fmtFloat(r.WordOverlap),
			fmtFloat(r.LengthSimilarity),
		})
	}
	md.H2("Metrics by noise level")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Noise", "Cosine distance", "Text similarity", "Word overlap", "Length similarity"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(d.Summaries) > 0 {
		summaryRows := make([][]string, 0, len(d.Summaries))
		for _, s := range d.Summaries {
			summaryRows = append(summaryRows, []string{
				s.Name,
				s.Better,
				fmtFloat(s.Summary.Mean),
				fmtFloat(s.Summary.Median),
				fmtFloat(s.Summary.Std),
				fmt.Sprintf("%s (at %d%%)", fmtFloat(s.Summary.Min), s.Summary.MinLevel),
				fmt.Sprintf("%s (at %d%%)", fmtFloat(s.Summary.Max), s.Summary.MaxLevel),
			})
		}
		md.H2("Summary statistics")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Metric", "Better", "Mean", "Median", "Std", "Min", "Max"},
			Rows:   summaryRows,
		})
		md.PlainText("")
	}

	if len(d.Rows) > 0 {
		levels := make([]int, len(d.Rows))
		for i, r := range d.Rows {
			levels[i] = r.Level
		}
		md.H2("Charts")
		md.PlainText("")
		charts := []struct {
			title string
			value func(DriftRow) float64
		}{
			{"Cosine distance", func(r DriftRow) float64 { return r.CosineDistance }},
			{"Text similarity", func(r DriftRow) float64 { return r.TextSimilarity }},
			{"Word overlap", func(r DriftRow) float64 { return r.WordOverlap }},
		}
		for _, c := range charts {
			values := make([]float64, len(d.Rows))
			for i, r := range d.Rows {
				values[i] = c.value(r)
			}
			md.CodeBlocks(markdown.SyntaxHighlightMermaid, XYChart(c.title, levels, values))
			md.PlainText("")
		}

		md.H2("Diffs")
		md.PlainText("")
		for _, r := range d.Rows {
			md.H3(fmt.Sprintf("Noise %d%%", r.Level))
			md.PlainText("")
			diff := WordDiff(d.Original, r.Final)
			if diff == "" {
				md.Tip("Final output is identical to the original.")
			} else {
				md.CodeBlocks(markdown.SyntaxHighlight("diff"), strings.TrimRight(diff, "\n"))
			}
			md.PlainText("")
		}
	} else {
		md.Note("No final outputs were found.")
		md.PlainText("")
	}

	return md.Build()
}

// WriteCostMarkdown renders a cost summary with a stage breakdown chart.
func WriteCostMarkdown(w io.Writer, s cost.Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Cost Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"API calls", strconv.Itoa(s.TotalCalls)},
			{"Input tokens", strconv.Itoa(s.TotalTokens.Input)},
			{"Output tokens", strconv.Itoa(s.TotalTokens.Output)},
			{"Total cost", fmt.Sprintf("%.6f %s", s.TotalCost, s.Currency)},
			{"Average per call", fmt.Sprintf("%.6f %s", s.AverageCostPerCall, s.Currency)},
		},
	})
	md.PlainText("")

	stages := sortedKeys(s.CostByStage)
	if s.TotalCost > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Cost by stage (micro "+s.Currency+")"),
			piechart.WithShowData(true),
		)
		for _, stage := range stages {
			if micros := uint64(s.CostByStage[stage] * 1e6); micros > 0 {
				chart.LabelAndIntValue("Stage "+strconv.Itoa(stage), micros)
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if len(s.CostByNoiseLevel) > 0 {
		rows := make([][]string, 0, len(s.CostByNoiseLevel))
		for _, level := range sortedKeys(s.CostByNoiseLevel) {
			rows = append(rows, []string{strconv.Itoa(level) + "%", fmt.Sprintf("%.6f", s.CostByNoiseLevel[level])})
		}
		md.H2("Cost by noise level")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Noise", "Cost"}, Rows: rows})
		md.PlainText("")
	}
	return md.Build()
}

// XYChart renders a mermaid line chart of values over noise levels.
func XYChart(title string, levels []int, values []float64) string {
	xs := make([]string, len(levels))
	for i, l := range levels {
		xs[i] = strconv.Itoa(l)
	}
	ys := make([]string, len(values))
	for i, v := range values {
		ys[i] = fmtFloat(v)
	}

	var b strings.Builder
	b.WriteString("xychart-beta\n")
	fmt.Fprintf(&b, "    title %q\n", title)
	fmt.Fprintf(&b, "    x-axis \"Noise level (%%)\" [%s]\n", strings.Join(xs, ", "))
	fmt.Fprintf(&b, "    y-axis %q\n", title)
	fmt.Fprintf(&b, "    line [%s]", strings.Join(ys, ", "))
	return b.String()
}

// WordDiff returns a unified diff of the two texts with one word per line,
// or "" when they have the same words.
func WordDiff(original, final string) string {
	return udiff.Unified("original", "final", wordLines(original), wordLines(final))
}

func wordLines(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, "\n") + "\n"
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
