// Package stats holds the numeric helpers shared by the session and power
// summaries: nearest-rank percentiles and (weighted) moments.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Percentile returns the nearest-rank p-th percentile of values without
// interpolation. values need not be sorted and is not modified. An empty
// input yields 0; p <= 0 yields the minimum and p >= 100 the maximum.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return floats.Min(values)
	}
	if p >= 100 {
		return floats.Max(values)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	idx := max(1, rank) - 1
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Mean returns the arithmetic mean or 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

// WeightedMean returns the mean of values weighted by weights. A nil weights
// slice weighs every value equally. Zero total weight yields 0.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || zeroWeight(weights) {
		return 0
	}
	return stat.Mean(values, weights)
}

// WeightedVariance returns the weighted mean and the population variance of
// values, dividing by the total weight. Weights are durations, so the result
// does not depend on their unit.
func WeightedVariance(values, weights []float64) (mean, variance float64) {
	if len(values) == 0 || zeroWeight(weights) {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, variance = stat.PopMeanVariance(values, weights)
	if math.IsNaN(variance) || math.IsInf(variance, 0) || variance < 0 {
		variance = 0
	}
	return mean, variance
}

func zeroWeight(weights []float64) bool {
	return weights != nil && floats.Sum(weights) == 0
}

// Summary is the count, mean and 95th percentile of a list of durations or
// depths.
type Summary struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
}

// Summarize builds a Summary of values using the p-th percentile.
func Summarize(values []float64, p float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	return Summary{Count: len(values), Avg: Mean(values), P95: Percentile(values, p)}
}
