package healing

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/report"
	"github.com/agentic-turing/atm/pkg/stats"
)

// ReportFileName is the report written under the results directory.
const ReportFileName = "self_healing_analysis.json"

// LevelHealing is the healing outcome of one noise level.
type LevelHealing struct {
	InitialConfidence     float64   `json:"initial_confidence"`
	FinalConfidence       float64   `json:"final_confidence"`
	Improvement           float64   `json:"improvement"`
	Attempts              int       `json:"attempts"`
	SuccessfulCorrections int       `json:"successful_corrections"`
	Quality               string    `json:"quality"`
	Interpretation        string    `json:"interpretation"`
	FinalOutput           string    `json:"final_output"`
	Detection             Detection `json:"detection"`
}

// Summary aggregates healing across levels.
type Summary struct {
	MeanImprovement      float64 `json:"mean_improvement"`
	MaxImprovement       float64 `json:"max_improvement"`
	MeanSuccessRate      float64 `json:"mean_success_rate"`
	OverallEffectiveness string  `json:"overall_effectiveness"`
}

// Report is the content of self_healing_analysis.json.
type Report struct {
	Metadata           report.Metadata         `json:"metadata"`
	Result             report.Result           `json:"result"`
	NoiseLevelAnalysis map[string]LevelHealing `json:"noise_level_analysis,omitempty"`
	Summary            *Summary                `json:"summary,omitempty"`
	EffectivenessError string                  `json:"effectiveness_error,omitempty"`
}

// Analyzer heals the final output of every noise level.
type Analyzer struct {
	Results *analysis.Results
	Healer  *Healer
	Now     func() time.Time
}

// NewAnalyzer returns an analyzer healing results with healer.
func NewAnalyzer(results *analysis.Results, healer *Healer) *Analyzer {
	return &Analyzer{Results: results, Healer: healer, Now: time.Now}
}

// Analyze heals every level. A failure of the effectiveness analysis is
// recorded in the report; context cancellation is returned.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	if a.Results == nil {
		return nil, errors.New("no drift results to analyze")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	rep := &Report{
		Metadata: report.NewMetadata("Self-Healing Translation Analysis",
			"confidence-based error detection and automatic correction of chain outputs", now()),
		Result: report.Result{Name: "self_healing"},
	}

	if err := a.effectiveness(ctx, rep); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logger.G(ctx).WithError(err).Error("effectiveness analysis failed")
		rep.EffectivenessError = err.Error()
		rep.Result.Summary = "effectiveness analysis unavailable"
		return rep, nil
	}

	rep.Result.Metric1 = rep.Summary.MeanImprovement
	rep.Result.Metric2 = rep.Summary.MeanSuccessRate
	rep.Result.Summary = fmt.Sprintf("mean confidence improvement %s, success rate %s, effectiveness %s",
		percent(rep.Summary.MeanImprovement), percent(rep.Summary.MeanSuccessRate), rep.Summary.OverallEffectiveness)
	return rep, nil
}

func (a *Analyzer) effectiveness(ctx context.Context, rep *Report) error {
	healer := a.Healer
	if healer == nil {
		healer = NewHealer(nil)
	}
	levels := a.Results.Levels()
	if len(levels) == 0 {
		return errors.New("no final outputs to heal")
	}

	rep.NoiseLevelAnalysis = make(map[string]LevelHealing, len(levels))
	improvements := make([]float64, 0, len(levels))
	successRates := make([]float64, 0, len(levels))
	for _, level := range levels {
		final := a.Results.FinalOutputs[level]
		healed, err := healer.Heal(ctx, a.Results.OriginalSentence, final)
		if err != nil {
			return err
		}
		rep.NoiseLevelAnalysis[fmt.Sprintf("noise_%d", level)] = LevelHealing{
			InitialConfidence:     healed.InitialConfidence,
			FinalConfidence:       healed.FinalConfidence,
			Improvement:           healed.Improvement,
			Attempts:              healed.TotalAttempts,
			SuccessfulCorrections: healed.SuccessfulCorrections,
			Quality:               healed.Quality,
			Interpretation:        healed.Interpretation,
			FinalOutput:           healed.FinalOutput,
			Detection:             healer.Detector.Detect(a.Results.OriginalSentence, final, nil),
		}
		improvements = append(improvements, healed.Improvement)
		successRates = append(successRates, float64(healed.SuccessfulCorrections)/float64(max(1, healed.TotalAttempts)))

		logger.G(ctx).WithFields(logrus.Fields{
			"noise_level": level,
			"initial":     healed.InitialConfidence,
			"final":       healed.FinalConfidence,
			"quality":     healed.Quality,
		}).Info("healed output")
	}

	mean := stats.Mean(improvements)
	summary := &Summary{
		MeanImprovement: mean,
		MaxImprovement:  slices.Max(improvements),
		MeanSuccessRate: stats.Mean(successRates),
	}
	switch {
	case mean > 0.1:
		summary.OverallEffectiveness = "high"
	case mean > 0:
		summary.OverallEffectiveness = "moderate"
	default:
		summary.OverallEffectiveness = "low"
	}
	rep.Summary = summary
	return nil
}

// Save writes rep to dir and returns the path.
func Save(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	return path, report.WriteJSON(path, rep)
}
