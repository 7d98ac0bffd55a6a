// Package formulas provides shared numeric helpers for portfolio statistics.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Dot calculates the dot product of two equal-length vectors.
// Returns 0 when lengths differ rather than panicking.
func Dot(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	return floats.Dot(x, y)
}

// Sum calculates the sum of a slice of float64 values
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data)
}

// Turnover calculates the total absolute allocation change between two
// weight vectors of equal length.
func Turnover(target, current []float64) float64 {
	if len(target) != len(current) {
		return 0
	}
	var total float64
	for i := range target {
		total += math.Abs(target[i] - current[i])
	}
	return total
}
