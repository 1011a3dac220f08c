package sensitivity

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/report"
)

// ReportFileName is the report written under the results directory.
const ReportFileName = "sensitivity_analysis.json"

// Section holds a computed value or the error that prevented it. It
// marshals as the value, or as {"error": "..."}.
type Section[T any] struct {
	Value *T
	Err   string
}

func succeeded[T any](v *T) Section[T] { return Section[T]{Value: v} }

func failed[T any](err error) Section[T] { return Section[T]{Err: err.Error()} }

// MarshalJSON implements json.Marshaler.
func (s Section[T]) MarshalJSON() ([]byte, error) {
	if s.Err != "" || s.Value == nil {
		return json.Marshal(map[string]string{"error": s.Err})
	}
	return json.Marshal(s.Value)
}

// JSONSchema describes the two shapes a section marshals to.
func (Section[T]) JSONSchema() *jsonschema.Schema {
	value := (&jsonschema.Reflector{DoNotReference: true}).Reflect(new(T))
	value.Version = ""

	failure := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties(), Required: []string{"error"}}
	failure.Properties.Set("error", &jsonschema.Schema{Type: "string"})
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{value, failure}}
}

// Metadata extends the common report metadata with the bootstrap settings.
type Metadata struct {
	report.Metadata
	BootstrapIterations int     `json:"n_bootstrap_iterations"`
	ConfidenceLevel     float64 `json:"confidence_level"`
}

// ParameterSensitivity groups the parameter sweeps.
type ParameterSensitivity struct {
	EmbeddingDimension Section[Sensitivity[int]]    `json:"embedding_dimension"`
	NgramRange         Section[Sensitivity[string]] `json:"ngram_range"`
}

// BootstrapAnalysis groups the bootstrapped metrics.
type BootstrapAnalysis struct {
	CosineDistance Section[Bootstrap] `json:"cosine_distance"`
}

// ANOVAResults groups the variance analyses.
type ANOVAResults struct {
	MultiFactor Section[ANOVA] `json:"multi_factor"`
}

// EffectSizes groups the standardized differences.
type EffectSizes struct {
	CohensD0vs50 Section[map[string]float64] `json:"cohens_d_0_vs_50"`
}

// Report is the content of sensitivity_analysis.json.
type Report struct {
	Metadata             Metadata             `json:"metadata"`
	Result               report.Result        `json:"result"`
	ParameterSensitivity ParameterSensitivity `json:"parameter_sensitivity"`
	BootstrapAnalysis    BootstrapAnalysis    `json:"bootstrap_analysis"`
	ANOVAResults         ANOVAResults         `json:"anova_results"`
	EffectSizes          EffectSizes          `json:"effect_sizes"`
}

// Analyzer runs the sensitivity checks over a drift run.
type Analyzer struct {
	Results     *analysis.Results
	Dimensions  []int
	NgramRanges []NgramRange
	Iterations  int
	Seed        int64
	// EffectFrom and EffectTo are the noise levels compared by Cohen's d.
	EffectFrom, EffectTo int
	Now                  func() time.Time
}

// NewAnalyzer returns an analyzer with the default sweeps.
func NewAnalyzer(results *analysis.Results) *Analyzer {
	return &Analyzer{
		Results:     results,
		Dimensions:  DefaultDimensions,
		NgramRanges: DefaultNgramRanges,
		Iterations:  DefaultIterations,
		Seed:        DefaultSeed,
		EffectTo:    50,
		Now:         time.Now,
	}
}

// Analyze runs every check. A failing check is recorded in its section; the
// error return is reserved for missing results and cancellation.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	if a.Results == nil {
		return nil, errors.New("no drift results to analyze")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	log := logger.G(ctx).WithField("analysis", "sensitivity")

	rep := &Report{
		Metadata: Metadata{
			Metadata: report.NewMetadata("Systematic Sensitivity Analysis",
				"embedding dimension and n-gram sweeps, bootstrap, ANOVA and effect sizes", now()),
			BootstrapIterations: a.Iterations,
			ConfidenceLevel:     ConfidenceLevel,
		},
		Result: report.Result{Name: "sensitivity"},
	}

	original := a.Results.OriginalSentence
	levels := a.Results.Levels()
	finals := make([]string, len(levels))
	for i, level := range levels {
		finals[i] = a.Results.FinalOutputs[level]
	}

	if len(finals) == 0 {
		err := errors.New("no final outputs to analyze")
		rep.ParameterSensitivity.EmbeddingDimension = failed[Sensitivity[int]](err)
		rep.ParameterSensitivity.NgramRange = failed[Sensitivity[string]](err)
		log.WithError(err).Error("parameter sweeps skipped")
	} else {
		if s, err := EmbeddingDimension(ctx, original, finals, a.Dimensions); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Error("embedding dimension sensitivity failed")
			rep.ParameterSensitivity.EmbeddingDimension = failed[Sensitivity[int]](err)
		} else {
			rep.ParameterSensitivity.EmbeddingDimension = succeeded(s)
			log.WithFields(logrus.Fields{"rho": float64(s.Correlation), "p": float64(s.PValue)}).Info("embedding dimension sensitivity")
		}

		if s, err := Ngram(ctx, original, finals, a.NgramRanges); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Error("n-gram sensitivity failed")
			rep.ParameterSensitivity.NgramRange = failed[Sensitivity[string]](err)
		} else {
			rep.ParameterSensitivity.NgramRange = succeeded(s)
			log.WithFields(logrus.Fields{"effect_size": s.EffectSize, "p": float64(s.PValue)}).Info("n-gram sensitivity")
		}
	}

	distanceLevels, distances := analysis.Series(a.Results.SemanticDistances)
	rng := rand.New(rand.NewPCG(uint64(a.Seed), 0))
	if b, err := BootstrapMean(analysis.MetricCosineDistance, distances, a.Iterations, rng); err != nil {
		log.WithError(err).Error("bootstrap analysis failed")
		rep.BootstrapAnalysis.CosineDistance = failed[Bootstrap](err)
	} else {
		rep.BootstrapAnalysis.CosineDistance = succeeded(b)
		rep.Result.Metric1 = b.Observed
		log.WithFields(logrus.Fields{"observed": b.Observed, "ci_lower": b.CILower, "ci_upper": b.CIUpper, "bias": b.Bias}).Info("bootstrap")
	}

	if res, err := NoiseLevelANOVA(distanceLevels, a.Results.SemanticDistances, a.Results.TextSimilarities, a.Results.WordOverlaps); err != nil {
		log.WithError(err).Error("ANOVA failed")
		rep.ANOVAResults.MultiFactor = failed[ANOVA](err)
	} else {
		rep.ANOVAResults.MultiFactor = succeeded(res)
		rep.Result.Metric2 = res.EtaSquared
		log.WithFields(logrus.Fields{"f": float64(res.F), "p": float64(res.PValue), "eta_squared": res.EtaSquared}).Info("ANOVA")
	}

	effects := map[string]float64{
		"semantic_distances": CohensD(a.Results.SemanticDistances, a.EffectFrom, a.EffectTo),
		"text_similarities":  CohensD(a.Results.TextSimilarities, a.EffectFrom, a.EffectTo),
		"word_overlaps":      CohensD(a.Results.WordOverlaps, a.EffectFrom, a.EffectTo),
	}
	rep.EffectSizes.CohensD0vs50 = succeeded(&effects)

	rep.Result.Summary = fmt.Sprintf("bootstrap mean cosine distance %.4f, noise level eta² %.4f",
		rep.Result.Metric1, rep.Result.Metric2)
	return rep, nil
}

// Save writes rep to dir and returns the path.
func Save(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	return path, report.WriteJSON(path, rep)
}
