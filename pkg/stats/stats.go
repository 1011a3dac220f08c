// Package stats holds the numeric helpers shared by the offline analyzers.
package stats

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Std returns the standard deviation with ddof delta degrees of freedom
// (0 for population, 1 for sample). It is 0 when there are not enough values.
func Std(xs []float64, ddof int) float64 {
	n := len(xs) - ddof
	if n <= 0 || len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(n))
}

// Sum adds xs.
func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// ArgMax returns the index of the first largest value, or -1 for an empty slice.
func ArgMax(xs []float64) int {
	best := -1
	for i, x := range xs {
		if best < 0 || x > xs[best] {
			best = i
		}
	}
	return best
}

// ArgMin returns the index of the first smallest value, or -1 for an empty slice.
func ArgMin(xs []float64) int {
	best := -1
	for i, x := range xs {
		if best < 0 || x < xs[best] {
			best = i
		}
	}
	return best
}

// Percentile returns the q-th percentile (0..100) using linear interpolation
// between the closest ranks.
func Percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median is the 50th percentile.
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// Pearson returns the correlation coefficient of x and y, or NaN when either
// has no variance.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	if Std(x, 0) == 0 || Std(y, 0) == 0 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Ranks assigns 1-based ranks, averaging ties.
func Ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// Spearman returns the rank correlation and its two-sided p-value from the
// t distribution with n-2 degrees of freedom.
func Spearman(x, y []float64) (rho, p float64) {
	rho = Pearson(Ranks(x), Ranks(y))
	n := float64(len(x))
	if math.IsNaN(rho) || n < 3 {
		return rho, math.NaN()
	}
	if math.Abs(rho) >= 1 {
		return rho, 0
	}
	df := n - 2
	t := rho * math.Sqrt(df/(1-rho*rho))
	return rho, 2 * TSurvival(math.Abs(t), df)
}

// TCDF is the Student t cumulative distribution function.
func TCDF(t, df float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.CDF(t)
}

// TSurvival is 1 - TCDF.
func TSurvival(t, df float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(t)
}

// TQuantile inverts TCDF.
func TQuantile(p, df float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p)
}

// FCDF is the F distribution cumulative distribution function.
func FCDF(f, d1, d2 float64) float64 {
	if f <= 0 {
		return 0
	}
	return distuv.F{D1: d1, D2: d2}.CDF(f)
}

// Interval is a closed range.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// TConfidenceInterval returns the two-sided confidence interval of the mean
// of xs using the t distribution and the standard error of the mean.
func TConfidenceInterval(xs []float64, confidence float64) Interval {
	m := Mean(xs)
	if len(xs) < 2 {
		return Interval{Lower: math.NaN(), Upper: math.NaN()}
	}
	sem := Std(xs, 1) / math.Sqrt(float64(len(xs)))
	if sem == 0 {
		return Interval{Lower: m, Upper: m}
	}
	h := TQuantile((1+confidence)/2, float64(len(xs)-1)) * sem
	return Interval{Lower: m - h, Upper: m + h}
}

// ANOVA is a one-way analysis of variance.
type ANOVA struct {
	F         float64
	P         float64
	DFBetween int
	DFWithin  int
	EtaSquare float64
}

// OneWayANOVA tests whether the groups share a mean.
func OneWayANOVA(groups [][]float64) (ANOVA, error) {
	if len(groups) < 2 {
		return ANOVA{}, errors.New("at least two groups are required")
	}
	var all []float64
	for _, g := range groups {
		if len(g) == 0 {
			return ANOVA{}, errors.New("groups must not be empty")
		}
		all = append(all, g...)
	}
	grand := Mean(all)

	var ssBetween, ssWithin float64
	for _, g := range groups {
		m := Mean(g)
		ssBetween += float64(len(g)) * (m - grand) * (m - grand)
		for _, x := range g {
			ssWithin += (x - m) * (x - m)
		}
	}
	res := ANOVA{
		DFBetween: len(groups) - 1,
		DFWithin:  len(all) - len(groups),
	}
	if total := ssBetween + ssWithin; total > 0 {
		res.EtaSquare = ssBetween / total
	}
	if res.DFWithin <= 0 {
		return res, errors.New("not enough observations for the within-group variance")
	}
	if ssWithin == 0 {
		res.F = math.Inf(1)
		res.P = 0
		return res, nil
	}
	res.F = (ssBetween / float64(res.DFBetween)) / (ssWithin / float64(res.DFWithin))
	res.P = 1 - FCDF(res.F, float64(res.DFBetween), float64(res.DFWithin))
	return res, nil
}

// Polyfit returns least-squares polynomial coefficients of the given degree,
// highest power first.
func Polyfit(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, errors.Errorf("length mismatch: %d != %d", len(x), len(y))
	}
	if len(x) <= degree {
		return nil, errors.Errorf("need more than %d points for a degree %d fit", degree, degree)
	}

	a := mat.NewDense(len(x), degree+1, nil)
	for i, xi := range x {
		for j := 0; j <= degree; j++ {
			a.Set(i, j, math.Pow(xi, float64(degree-j)))
		}
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, errors.Wrap(err, "least squares fit failed")
	}
	out := make([]float64, degree+1)
	for i := range out {
		out[i] = coef.AtVec(i)
	}
	return out, nil
}

// Polyval evaluates coefficients (highest power first) at x.
func Polyval(coef []float64, x float64) float64 {
	var v float64
	for _, c := range coef {
		v = v*x + c
	}
	return v
}

// Savgol smooths ys with a Savitzky-Golay filter. Interior points use the
// centred window; the edges are taken from a polynomial fitted to the first
// and last window.
func Savgol(ys []float64, window, order int) ([]float64, error) {
	if window%2 == 0 || window <= order {
		return nil, errors.Errorf("invalid savgol window %d for order %d", window, order)
	}
	if len(ys) < window {
		return nil, errors.Errorf("need at least %d points, got %d", window, len(ys))
	}

	half := window / 2
	xs := make([]float64, window)
	for i := range xs {
		xs[i] = float64(i)
	}
	out := make([]float64, len(ys))
	for i := half; i < len(ys)-half; i++ {
		coef, err := Polyfit(xs, ys[i-half:i+half+1], order)
		if err != nil {
			return nil, err
		}
		out[i] = Polyval(coef, float64(half))
	}

	head, err := Polyfit(xs, ys[:window], order)
	if err != nil {
		return nil, err
	}
	tail, err := Polyfit(xs, ys[len(ys)-window:], order)
	if err != nil {
		return nil, err
	}
	for i := 0; i < half; i++ {
		out[i] = Polyval(head, float64(i))
		out[len(ys)-half+i] = Polyval(tail, float64(window-half+i))
	}
	return out, nil
}

// Gradient estimates dy/dx over possibly non-uniform x using second order
// central differences inside and one-sided differences at the edges.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	g := make([]float64, n)
	if n < 2 || len(x) != n {
		return g
	}
	g[0] = (y[1] - y[0]) / (x[1] - x[0])
	g[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		hd := x[i] - x[i-1]
		hs := x[i+1] - x[i]
		g[i] = (hd*hd*y[i+1] - hs*hs*y[i-1] + (hs*hs-hd*hd)*y[i]) / (hs * hd * (hd + hs))
	}
	return g
}

// RSquared is the coefficient of determination of predictions against ys.
// It is 0 when ys has no variance.
func RSquared(ys, predicted []float64) float64 {
	m := Mean(ys)
	var ssRes, ssTot float64
	for i, y := range ys {
		ssRes += (y - predicted[i]) * (y - predicted[i])
		ssTot += (y - m) * (y - m)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// Float marshals NaN and infinities as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON reads null as NaN.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Floats converts a slice for JSON output.
func Floats(xs []float64) []Float {
	out := make([]Float, len(xs))
	for i, x := range xs {
		out[i] = Float(x)
	}
	return out
}
