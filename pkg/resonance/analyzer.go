package resonance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/report"
)

const (
	// ReportFileName is the report written under the results directory.
	ReportFileName = "stochastic_resonance_analysis.json"
	// DefaultSeed seeds the bootstrap when none is configured.
	DefaultSeed = 42
)

// Report is the content of stochastic_resonance_analysis.json.
type Report struct {
	Metadata                 report.Metadata `json:"metadata"`
	Result                   report.Result   `json:"result"`
	StochasticResonance      *Detection      `json:"stochastic_resonance,omitempty"`
	StochasticResonanceError string          `json:"stochastic_resonance_error,omitempty"`
	SNRCurve                 *Curve          `json:"snr_curve,omitempty"`
	SNRCurveError            string          `json:"snr_curve_error,omitempty"`
	AttentionThreshold       *Threshold      `json:"attention_threshold,omitempty"`
	AttentionThresholdError  string          `json:"attention_threshold_error,omitempty"`
}

// Analyzer runs resonance detection over the text similarities of a drift run.
type Analyzer struct {
	Results *analysis.Results
	Seed    int64
	Now     func() time.Time
}

// NewAnalyzer returns an analyzer with the default bootstrap seed.
func NewAnalyzer(results *analysis.Results) *Analyzer {
	return &Analyzer{Results: results, Seed: DefaultSeed, Now: time.Now}
}

// Analyze computes detection, curve and threshold sections. Section failures
// are recorded in the report.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	if a.Results == nil {
		return nil, errors.New("no drift results to analyze")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	log := logger.G(ctx).WithField("analysis", "stochastic_resonance")

	rep := &Report{
		Metadata: report.NewMetadata("Stochastic Resonance Detection",
			"signal-to-noise ratio of translation quality across noise levels and a sigmoid attention threshold model", now()),
		Result: report.Result{Name: "stochastic_resonance"},
	}

	intLevels, similarities := analysis.Series(a.Results.TextSimilarities)
	levels := make([]float64, len(intLevels))
	for i, l := range intLevels {
		levels[i] = float64(l)
	}

	if len(levels) == 0 {
		err := errors.New("no text similarities to analyze")
		log.WithError(err).Error("stochastic resonance analysis failed")
		rep.StochasticResonanceError = err.Error()
		rep.SNRCurveError = err.Error()
		rep.AttentionThresholdError = err.Error()
		rep.Result.Summary = "no data"
		return rep, nil
	}

	rng := rand.New(rand.NewPCG(uint64(a.Seed), 0))
	detection := Detect(levels, similarities, rng)
	rep.StochasticResonance = &detection

	curve := AnalyzeCurve(levels, similarities)
	rep.SNRCurve = &curve

	threshold := FitThreshold(levels, similarities)
	if len(levels) < minFitPoints {
		log.WithField("points", len(levels)).Warn("too few points for a threshold fit, using default model")
	}
	rep.AttentionThreshold = &threshold

	rep.Result.Metric1 = detection.OptimalNoiseLevel
	rep.Result.Metric2 = float64(detection.Gain)
	if detection.Detected {
		rep.Result.Summary = fmt.Sprintf("resonance at %.1f%% noise (%s, gain %.3f), curve %s",
			detection.OptimalNoiseLevel, detection.Strength, float64(detection.Gain), curve.Type)
	} else {
		rep.Result.Summary = fmt.Sprintf("no resonance detected, curve %s", curve.Type)
	}
	log.WithFields(logrus.Fields{
		"detected":  detection.Detected,
		"optimal":   detection.OptimalNoiseLevel,
		"curve":     curve.Type,
		"threshold": threshold.Estimate,
		"r2":        threshold.R2,
	}).Info("stochastic resonance analysis complete")
	return rep, nil
}

// Save writes rep to dir and returns the path.
func Save(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	return path, report.WriteJSON(path, rep)
}
