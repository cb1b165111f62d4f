// Package stats provides the descriptive statistics behind crash spike
// detection. Standard deviations are sample deviations (÷(n−1)).
package stats

import "math"

// Number is any integer or float type the helpers accept.
type Number interface {
	~int | ~int32 | ~int64 | ~float64
}

// Sum returns the sum of values.
func Sum[T Number](values []T) T {
	var total T

	for _, v := range values {
		total += v
	}

	return total
}

// Floats converts crash counts to float64.
func Floats[T Number](values []T) []float64 {
	out := make([]float64, len(values))

	for i, v := range values {
		out[i] = float64(v)
	}

	return out
}

// Mean returns the arithmetic mean of values, 0 when there are none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	return Sum(values) / float64(len(values))
}

// MeanStdDev returns the mean and the sample standard deviation of values
// in one pass (Welford). The deviation is 0 for fewer than two values and
// exactly 0 for constant samples.
func MeanStdDev(values []float64) (mean, stddev float64) {
	var m2 float64

	for i, v := range values {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}

	if len(values) < 2 {
		return mean, 0
	}

	return mean, math.Sqrt(m2 / float64(len(values)-1))
}
