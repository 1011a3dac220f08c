package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptive(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(xs), 1e-12)
	assert.InDelta(t, 4.5, Median(xs), 1e-12)
	assert.InDelta(t, 2.0, Std(xs, 0), 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), Std(xs, 1), 1e-12)
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Std([]float64{1}, 1))
	assert.Equal(t, 7, ArgMax(xs))
	assert.Equal(t, 0, ArgMin(xs))
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, 1, ArgMax([]float64{1, 3, 3}))
}

func TestPercentile(t *testing.T) {
	xs := []float64{5, 1, 3, 2, 4}
	tests := []struct {
		q        float64
		expected float64
	}{
		{0, 1},
		{50, 3},
		{100, 5},
		{2.5, 1.1},
		{97.5, 4.9},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, Percentile(xs, tt.q), 1e-12)
	}
	assert.True(t, math.IsNaN(Percentile(nil, 50)))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, Pearson(x, []float64{2, 4, 6, 8, 10}), 1e-12)
	assert.InDelta(t, -1.0, Pearson(x, []float64{5, 4, 3, 2, 1}), 1e-12)
	assert.True(t, math.IsNaN(Pearson(x, []float64{1, 1, 1, 1, 1})))

	rho, p := Spearman(x, []float64{1, 4, 9, 16, 25})
	assert.InDelta(t, 1.0, rho, 1e-12)
	assert.InDelta(t, 0.0, p, 1e-9)

	rho, p = Spearman([]float64{1, 2, 3, 4, 5, 6}, []float64{2, 1, 4, 3, 6, 5})
	assert.InDelta(t, 0.8285714285714286, rho, 1e-9)
	assert.InDelta(t, 0.0416, p, 2e-3)
}

func TestRanks(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Ranks([]float64{10, 20, 20, 30}))
	assert.Equal(t, []float64{3, 1, 2}, Ranks([]float64{0.9, 0.1, 0.5}))
}

func TestDistributions(t *testing.T) {
	assert.InDelta(t, 0.5, TCDF(0, 5), 1e-12)
	assert.InDelta(t, 2.570581835636314, TQuantile(0.975, 5), 1e-6)
	assert.InDelta(t, 12.706204736174707, TQuantile(0.975, 1), 1e-5)
	assert.InDelta(t, 0.95, FCDF(5.786135043349964, 2, 5), 1e-6)
	assert.Equal(t, 0.0, FCDF(0, 2, 5))
}

func TestTConfidenceInterval(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	ci := TConfidenceInterval(xs, 0.95)
	sem := Std(xs, 1) / math.Sqrt(6)
	assert.InDelta(t, 3.5-2.570581835636314*sem, ci.Lower, 1e-6)
	assert.InDelta(t, 3.5+2.570581835636314*sem, ci.Upper, 1e-6)

	flat := TConfidenceInterval([]float64{2, 2, 2}, 0.95)
	assert.Equal(t, Interval{Lower: 2, Upper: 2}, flat)
}

func TestOneWayANOVA(t *testing.T) {
	res, err := OneWayANOVA([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	require.NoError(t, err)
	assert.InDelta(t, 27.0, res.F, 1e-9)
	assert.Equal(t, 2, res.DFBetween)
	assert.Equal(t, 6, res.DFWithin)
	assert.InDelta(t, 0.001, res.P, 5e-4)
	assert.InDelta(t, 54.0/60.0, res.EtaSquare, 1e-12)

	_, err = OneWayANOVA([][]float64{{1}})
	assert.Error(t, err)
	_, err = OneWayANOVA([][]float64{{1}, {2}})
	assert.Error(t, err)
}

func TestPolyfit(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = -2*xi*xi + 3*xi + 1
	}

	coef, err := Polyfit(x, y, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-2, 3, 1}, coef, 1e-9)
	assert.InDelta(t, 1.0, Polyval(coef, 0), 1e-9)

	_, err = Polyfit(x[:2], y[:2], 2)
	assert.Error(t, err)
	_, err = Polyfit(x, y[:3], 1)
	assert.Error(t, err)
}

func TestSavgol(t *testing.T) {
	// quadratics pass through unchanged
	ys := []float64{1, 4, 9, 16, 25, 36, 49}
	smoothed, err := Savgol(ys, 5, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ys, smoothed, 1e-9)

	noisy := []float64{0, 1, 0, 1, 0, 1, 0}
	smoothed, err = Savgol(noisy, 5, 2)
	require.NoError(t, err)
	assert.InDelta(t, (-3*1+12*0+17*1+12*0-3*1)/35.0, smoothed[3], 1e-9)

	_, err = Savgol(ys[:4], 5, 2)
	assert.Error(t, err)
	_, err = Savgol(ys, 4, 2)
	assert.Error(t, err)
}

func TestGradient(t *testing.T) {
	x := []float64{0, 10, 20, 25, 30}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 3 * xi
	}
	assert.InDeltaSlice(t, []float64{3, 3, 3, 3, 3}, Gradient(y, x), 1e-9)

	sq := []float64{0, 100, 400, 625, 900}
	g := Gradient(sq, x)
	assert.InDelta(t, 20.0, g[1], 1e-9)
	assert.InDelta(t, 50.0, g[3], 1e-9)
	assert.Equal(t, []float64{0}, Gradient([]float64{1}, []float64{1}))
}

func TestRSquared(t *testing.T) {
	assert.Equal(t, 1.0, RSquared([]float64{1, 2, 3}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, RSquared([]float64{2, 2}, []float64{1, 3}))
}

func TestFloatJSON(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"nan":  Float(math.NaN()),
		"inf":  Float(math.Inf(1)),
		"list": Floats([]float64{0.5, math.NaN()}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nan": null, "inf": null, "list": [0.5, null]}`, string(data))

	var f Float
	require.NoError(t, json.Unmarshal([]byte("null"), &f))
	assert.True(t, math.IsNaN(float64(f)))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]int{0, 10, 25}, []float64{0.2, 0.5, 0.2})
	assert.InDelta(t, 0.3, s.Mean, 1e-12)
	assert.InDelta(t, 0.2, s.Median, 1e-12)
	assert.Equal(t, 0.2, s.Min)
	assert.Equal(t, 0, s.MinLevel)
	assert.Equal(t, 0.5, s.Max)
	assert.Equal(t, 10, s.MaxLevel)

	assert.Equal(t, Summary{}, Summarize(nil, nil))
}
