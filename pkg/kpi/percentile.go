package kpi

import (
	"math"
	"sort"
)

// Distribution summarizes a set of per-host values
type Distribution struct {
	Average float64 `json:"average"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	Peak    float64 `json:"peak"`
	Min     float64 `json:"min"`
	CV      float64 `json:"cv"` // coefficient of variation
}

// Distribute computes the distribution of values; empty input yields zeros
func Distribute(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Distribution{
		Average: calculateAverage(sorted),
		P50:     calculatePercentile(sorted, 50),
		P95:     calculatePercentile(sorted, 95),
		Peak:    sorted[len(sorted)-1],
		Min:     sorted[0],
		CV:      coefficientOfVariation(sorted),
	}
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	rank := (percentile / 100.0) * float64(len(sortedValues)-1)
	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))
	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	fraction := rank - float64(lowerIndex)
	return sortedValues[lowerIndex] + (sortedValues[upperIndex]-sortedValues[lowerIndex])*fraction
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// coefficientOfVariation is stddev / mean; high values mean a few hosts
// carry most of the draw
func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff/float64(len(values))) / mean
}
