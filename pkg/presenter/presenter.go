// Package presenter provides consistent CLI output for user-facing messages,
// including success, error, warning, and informational output with color support and quiet mode.
package presenter

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/agentic-turing/atm/pkg/cost"
)

// StageOutput is one translation step as shown to the user
type StageOutput struct {
	Number int
	Skill  string
	Text   string
}

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Chain(level int, input string, stages []StageOutput)
	CostSummary(summary cost.Summary)
	Separator()
	SetQuiet(quiet bool)
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto lets the color package detect terminal support
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

// New creates a TerminalPresenter writing to stdout and stderr
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom writers and color mode
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
	}

	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("ATM_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header underlined with dashes
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Chain displays the input and every stage output of one noise level
func (p *TerminalPresenter) Chain(level int, input string, stages []StageOutput) {
	if p.quiet {
		return
	}

	p.Section(fmt.Sprintf("Noise level %d%%", level))
	labelColor := color.New(color.FgCyan)
	labelColor.Fprintf(p.output, "Input: ")
	fmt.Fprintf(p.output, "%s\n", input)
	for _, stage := range stages {
		labelColor.Fprintf(p.output, "[%d] %s: ", stage.Number, stage.Skill)
		fmt.Fprintf(p.output, "%s\n", stage.Text)
	}
}

// CostSummary displays token totals and the cost broken down by stage and noise level
func (p *TerminalPresenter) CostSummary(summary cost.Summary) {
	if p.quiet {
		return
	}

	statsColor := color.New(color.FgCyan, color.Bold)
	statsColor.Fprintf(p.output, "[Usage Stats] Calls: %d | Input tokens: %d | Output tokens: %d | Total: %d\n",
		summary.TotalCalls, summary.TotalTokens.Input, summary.TotalTokens.Output, summary.TotalTokens.Total)
	statsColor.Fprintf(p.output, "[Cost Stats] Total: %s | Average per call: %s\n",
		money(summary.TotalCost, summary.Currency), money(summary.AverageCostPerCall, summary.Currency))

	if len(summary.CostByStage) > 0 {
		fmt.Fprintf(p.output, "%-12s %14s\n", "Stage", "Cost")
		for _, stage := range sortedKeys(summary.CostByStage) {
			fmt.Fprintf(p.output, "%-12d %14s\n", stage, money(summary.CostByStage[stage], summary.Currency))
		}
	}
	if len(summary.CostByNoiseLevel) > 0 {
		fmt.Fprintf(p.output, "%-12s %14s\n", "Noise level", "Cost")
		for _, level := range sortedKeys(summary.CostByNoiseLevel) {
			fmt.Fprintf(p.output, "%-12s %14s\n", fmt.Sprintf("%d%%", level), money(summary.CostByNoiseLevel[level], summary.Currency))
		}
	}
}

func money(amount float64, currency string) string {
	if currency == "" || currency == "USD" {
		return fmt.Sprintf("$%.6f", amount)
	}
	return fmt.Sprintf("%.6f %s", amount, currency)
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Separator displays a faint rule between blocks of output
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

var defaultPresenter = New()

// Default returns the presenter behind the package-level functions
func Default() Presenter {
	return defaultPresenter
}

// Error displays an error message using the default presenter.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Chain displays one noise level's stage outputs using the default presenter.
func Chain(level int, input string, stages []StageOutput) {
	defaultPresenter.Chain(level, input, stages)
}

// CostSummary displays a cost summary using the default presenter.
func CostSummary(summary cost.Summary) {
	defaultPresenter.CostSummary(summary)
}

// Separator displays a separator using the default presenter.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet enables or disables quiet mode for the default presenter.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}
