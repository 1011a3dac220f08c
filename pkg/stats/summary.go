package stats

// Summary describes one metric across noise levels.
type Summary struct {
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	MinLevel int     `json:"min_noise_level"`
	Max      float64 `json:"max"`
	MaxLevel int     `json:"max_noise_level"`
}

// Summarize computes the population summary of values, where values[i] was
// measured at levels[i]. Ties in min and max resolve to the first level.
func Summarize(levels []int, values []float64) Summary {
	if len(values) == 0 || len(levels) != len(values) {
		return Summary{}
	}
	lo, hi := ArgMin(values), ArgMax(values)
	return Summary{
		Mean:     Mean(values),
		Median:   Median(values),
		Std:      Std(values, 0),
		Min:      values[lo],
		MinLevel: levels[lo],
		Max:      values[hi],
		MaxLevel: levels[hi],
	}
}
