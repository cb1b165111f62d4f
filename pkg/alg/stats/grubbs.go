package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance level used for spike detection.
const DefaultAlpha = 0.05

// minGrubbsSample is the smallest sample the test is defined for.
const minGrubbsSample = 3

// Grubbs runs the iterative one-sided Grubbs test for high outliers and
// returns the indices of the detected outliers in detection order, largest
// first. Each round removes the maximum while its G statistic exceeds the
// critical value at significance alpha.
func Grubbs(values []float64, alpha float64) []int {
	remaining := make([]int, len(values))
	for i := range remaining {
		remaining[i] = i
	}

	var outliers []int

	for len(remaining) >= minGrubbsSample {
		sample := make([]float64, len(remaining))
		for i, idx := range remaining {
			sample[i] = values[idx]
		}

		mean, sd := MeanStdDev(sample)
		if sd == 0 {
			break
		}

		top := 0

		for i, v := range sample {
			if v > sample[top] {
				top = i
			}
		}

		g := (sample[top] - mean) / sd
		if g <= GrubbsCritical(len(sample), alpha) {
			break
		}

		outliers = append(outliers, remaining[top])
		remaining = slices.Delete(remaining, top, top+1)
	}

	return outliers
}

// GrubbsCritical returns the one-sided critical G value for a sample of n
// values at significance alpha. n must be at least 3.
func GrubbsCritical(n int, alpha float64) float64 {
	nf := float64(n)

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nf - 2}
	t := dist.Quantile(1 - alpha/nf)
	t2 := t * t

	return (nf - 1) / math.Sqrt(nf) * math.Sqrt(t2/(nf-2+t2))
}
