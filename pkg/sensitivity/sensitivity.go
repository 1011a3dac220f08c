// Package sensitivity checks how much the drift measurements depend on the
// choices made to compute them: embedding size, n-gram range and the sample
// of noise levels.
package sensitivity

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/stats"
	"github.com/agentic-turing/atm/pkg/textsim"
)

const (
	// ConfidenceLevel is used for every interval in the report.
	ConfidenceLevel = 0.95
	// DefaultIterations is the number of bootstrap resamples.
	DefaultIterations = 10000
	// DefaultSeed seeds the bootstrap.
	DefaultSeed = 42

	ngramFeatures  = 1000
	embeddingNgram = 3
)

// DefaultDimensions are the vocabulary sizes swept for embedding sensitivity.
var DefaultDimensions = []int{100, 250, 500, 1000, 2000, 5000}

// NgramRange is an inclusive range of n-gram lengths.
type NgramRange struct {
	Min, Max int
}

func (r NgramRange) String() string {
	return fmt.Sprintf("%d,%d", r.Min, r.Max)
}

// DefaultNgramRanges are the ranges swept for n-gram sensitivity.
var DefaultNgramRanges = []NgramRange{{1, 1}, {1, 2}, {1, 3}, {1, 4}, {2, 3}, {2, 4}}

// Sensitivity is the cosine distance between the original and the final
// outputs, summarised for each value of one parameter.
type Sensitivity[T any] struct {
	Parameter      string        `json:"parameter_name"`
	Values         []T           `json:"parameter_values"`
	Means          []float64     `json:"metric_means"`
	Stds           []float64     `json:"metric_stds"`
	CILower        []stats.Float `json:"metric_ci_lower"`
	CIUpper        []stats.Float `json:"metric_ci_upper"`
	Correlation    stats.Float   `json:"correlation"`
	PValue         stats.Float   `json:"p_value"`
	FStatistic     stats.Float   `json:"f_statistic,omitempty"`
	EffectSize     float64       `json:"effect_size"`
	Interpretation string        `json:"interpretation"`
}

func (s *Sensitivity[T]) add(value T, g group) {
	s.Values = append(s.Values, value)
	s.Means = append(s.Means, g.mean)
	s.Stds = append(s.Stds, g.std)
	s.CILower = append(s.CILower, stats.Float(g.ci.Lower))
	s.CIUpper = append(s.CIUpper, stats.Float(g.ci.Upper))
}

// variation is the coefficient of variation of the means.
func (s *Sensitivity[T]) variation() float64 {
	if m := stats.Mean(s.Means); m > 0 {
		return stats.Std(s.Means, 0) / m
	}
	return 0
}

// Bootstrap is a percentile bootstrap of a mean.
type Bootstrap struct {
	Metric        string  `json:"metric_name"`
	Observed      float64 `json:"observed_value"`
	BootstrapMean float64 `json:"bootstrap_mean"`
	BootstrapStd  float64 `json:"bootstrap_std"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	Bias          float64 `json:"bias"`
	Iterations    int     `json:"n_iterations"`
}

// ANOVA tests whether the noise levels differ across the drift metrics.
type ANOVA struct {
	TestName       string      `json:"test_name"`
	F              stats.Float `json:"f_statistic"`
	PValue         stats.Float `json:"p_value"`
	DFBetween      int         `json:"df_between"`
	DFWithin       int         `json:"df_within"`
	EtaSquared     float64     `json:"effect_size_eta_squared"`
	Interpretation string      `json:"interpretation"`
}

type group struct {
	mean, std float64
	ci        stats.Interval
}

type distanceFunc func(original, final string) (float64, error)

// sweep measures the distance between original and every final output once
// per setting, in parallel. Settings where no distance could be computed come
// back nil.
func sweep(ctx context.Context, original string, finals []string, settings []distanceFunc) ([]*group, error) {
	groups := make([]*group, len(settings))
	g, ctx := errgroup.WithContext(ctx)
	for i, distance := range settings {
		g.Go(func() error {
			var ds []float64
			for _, final := range finals {
				if err := ctx.Err(); err != nil {
					return err
				}
				d, err := distance(original, final)
				if err != nil {
					logger.G(ctx).WithError(err).WithField("setting", i).Debug("distance failed")
					continue
				}
				ds = append(ds, d)
			}
			if len(ds) > 0 {
				groups[i] = &group{mean: stats.Mean(ds), std: stats.Std(ds, 1), ci: stats.TConfidenceInterval(ds, ConfidenceLevel)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}

// EmbeddingDimension sweeps the vocabulary size of a 1-3 gram TF-IDF and
// tests for a monotonic trend with Spearman's rho.
func EmbeddingDimension(ctx context.Context, original string, finals []string, dims []int) (*Sensitivity[int], error) {
	settings := make([]distanceFunc, len(dims))
	for i, dim := range dims {
		settings[i] = func(a, b string) (float64, error) {
			return textsim.PairDistance(a, b, 1, embeddingNgram, dim)
		}
	}
	groups, err := sweep(ctx, original, finals, settings)
	if err != nil {
		return nil, err
	}

	s := &Sensitivity[int]{Parameter: "embedding_dimension", PValue: 1}
	for i, g := range groups {
		if g != nil {
			s.add(dims[i], *g)
		}
	}
	if len(s.Means) < 3 {
		s.Interpretation = "Insufficient data for analysis"
		return s, nil
	}

	xs := make([]float64, len(s.Values))
	for i, d := range s.Values {
		xs[i] = float64(d)
	}
	rho, p := stats.Spearman(xs, s.Means)
	s.Correlation, s.PValue = stats.Float(rho), stats.Float(p)
	s.EffectSize = s.variation()
	switch {
	case p < 0.001:
		s.Interpretation = "Highly significant sensitivity (p < 0.001)"
	case p < 0.05:
		s.Interpretation = "Significant sensitivity (p < 0.05)"
	default:
		s.Interpretation = "No significant sensitivity detected"
	}
	return s, nil
}

// Ngram sweeps the n-gram range and compares the settings with an F-test of
// the spread of their means against their pooled variance.
func Ngram(ctx context.Context, original string, finals []string, ranges []NgramRange) (*Sensitivity[string], error) {
	settings := make([]distanceFunc, len(ranges))
	for i, r := range ranges {
		settings[i] = func(a, b string) (float64, error) {
			return textsim.PairDistance(a, b, r.Min, r.Max, ngramFeatures)
		}
	}
	groups, err := sweep(ctx, original, finals, settings)
	if err != nil {
		return nil, err
	}

	s := &Sensitivity[string]{Parameter: "ngram_range", PValue: 1}
	for i, g := range groups {
		if g != nil {
			s.add(ranges[i].String(), *g)
		}
	}
	if len(s.Means) < 3 {
		s.Interpretation = "Insufficient data"
		return s, nil
	}

	s.EffectSize = s.variation()
	k := float64(len(s.Means))
	grand := stats.Mean(s.Means)
	var ssBetween, ssWithin float64
	for i, m := range s.Means {
		ssBetween += (m - grand) * (m - grand)
		ssWithin += s.Stds[i] * s.Stds[i]
	}
	if ssWithin > 0 {
		f := (ssBetween / (k - 1)) / (ssWithin / k)
		s.FStatistic = stats.Float(f)
		s.PValue = stats.Float(1 - stats.FCDF(f, k-1, k))
	}
	if s.PValue < 0.05 {
		s.Interpretation = "Significant variation across n-gram ranges"
	} else {
		s.Interpretation = "No significant variation across n-gram ranges"
	}
	return s, nil
}

// BootstrapMean resamples values with replacement and reports the percentile
// interval of the resampled means.
func BootstrapMean(metric string, values []float64, iterations int, rng *rand.Rand) (*Bootstrap, error) {
	if len(values) < 2 {
		return nil, errors.New("insufficient data for bootstrap analysis")
	}
	if iterations <= 0 {
		return nil, errors.Errorf("invalid number of bootstrap iterations %d", iterations)
	}

	means := make([]float64, iterations)
	sample := make([]float64, len(values))
	for i := range means {
		for j := range sample {
			sample[j] = values[rng.IntN(len(values))]
		}
		means[i] = stats.Mean(sample)
	}

	alpha := 1 - ConfidenceLevel
	b := &Bootstrap{
		Metric:        metric,
		Observed:      stats.Mean(values),
		BootstrapMean: stats.Mean(means),
		BootstrapStd:  stats.Std(means, 1),
		CILower:       stats.Percentile(means, 100*alpha/2),
		CIUpper:       stats.Percentile(means, 100*(1-alpha/2)),
		Iterations:    iterations,
	}
	b.Bias = b.BootstrapMean - b.Observed
	return b, nil
}

// NoiseLevelANOVA runs a one-way ANOVA with one group per noise level. Each
// group holds the cosine distance and the complements of text similarity and
// word overlap, so that all three grow with drift.
func NoiseLevelANOVA(levels []int, distances, textSims, overlaps map[int]float64) (*ANOVA, error) {
	groups := make([][]float64, 0, len(levels))
	for _, level := range levels {
		d, ok1 := distances[level]
		ts, ok2 := textSims[level]
		wo, ok3 := overlaps[level]
		if !ok1 || !ok2 || !ok3 {
			return nil, errors.Errorf("missing metrics at noise level %d", level)
		}
		groups = append(groups, []float64{d, 1 - ts, 1 - wo})
	}

	res := &ANOVA{TestName: "One-Way ANOVA (Noise Level Effect)", PValue: 1}
	a, err := stats.OneWayANOVA(groups)
	if err != nil {
		res.Interpretation = "ANOVA failed: " + err.Error()
		return res, nil
	}
	res.F = stats.Float(a.F)
	res.PValue = stats.Float(a.P)
	res.DFBetween = a.DFBetween
	res.DFWithin = a.DFWithin
	res.EtaSquared = a.EtaSquare

	switch {
	case a.P < 0.001:
		res.Interpretation = "Highly significant differences between noise levels (p < 0.001)"
	case a.P < 0.05:
		res.Interpretation = "Significant differences between noise levels (p < 0.05)"
	default:
		res.Interpretation = "No significant differences detected"
	}
	switch {
	case a.EtaSquare >= 0.14:
		res.Interpretation += " - Large effect size (η² ≥ 0.14)"
	case a.EtaSquare >= 0.06:
		res.Interpretation += " - Medium effect size (0.06 ≤ η² < 0.14)"
	default:
		res.Interpretation += " - Small effect size (η² < 0.06)"
	}
	return res, nil
}

// CohensD is the difference of a metric between two noise levels in units of
// the metric's sample standard deviation over all levels. A missing level
// counts as 0.
func CohensD(values map[int]float64, from, to int) float64 {
	all := make([]float64, 0, len(values))
	for _, v := range values {
		all = append(all, v)
	}
	pooled := 1e-10
	if len(all) > 1 {
		pooled = stats.Std(all, 1)
	}
	if pooled <= 0 || math.IsNaN(pooled) {
		return 0
	}
	return (values[to] - values[from]) / pooled
}
