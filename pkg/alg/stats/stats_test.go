package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/Sumatoshi-tech/mozdata/pkg/alg/stats"
)

func TestSumAndFloats(t *testing.T) {
	t.Parallel()

	weekly := []int{120, 98, 143, 0}

	assert.Equal(t, 361, stats.Sum(weekly))
	assert.Zero(t, stats.Sum([]int64(nil)))
	assert.Equal(t, []float64{120, 98, 143, 0}, stats.Floats(weekly))
	assert.Empty(t, stats.Floats([]int32{}))
}

func TestMeanStdDev_CrashSeries(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		counts []float64
		mean   float64
		stddev float64
	}{
		{"no weeks", nil, 0, 0},
		{"one week", []float64{42}, 42, 0},
		{"flat", []float64{7, 7, 7, 7}, 7, 0},
		// Squared deviations sum to 40 over 4 degrees of freedom.
		{"steady", []float64{10, 12, 14, 16, 18}, 14, math.Sqrt(10)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mean, stddev := stats.MeanStdDev(tc.counts)
			assert.InDelta(t, tc.mean, mean, 1e-9)
			assert.InDelta(t, tc.stddev, stddev, 1e-9)
			assert.InDelta(t, tc.mean, stats.Mean(tc.counts), 1e-9)
		})
	}
}

func TestMeanStdDev_MatchesTwoPass(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		counts := rapid.SliceOfN(rapid.IntRange(0, 100000), 2, 60).Draw(t, "counts")
		values := stats.Floats(counts)

		mean, stddev := stats.MeanStdDev(values)

		var ss float64
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}

		want := math.Sqrt(ss / float64(len(values)-1))

		if math.Abs(mean-stats.Mean(values)) > 1e-6 {
			t.Fatalf("mean %v, two-pass %v", mean, stats.Mean(values))
		}

		if math.Abs(stddev-want) > 1e-6*math.Max(1, want) {
			t.Fatalf("stddev %v, two-pass %v", stddev, want)
		}
	})
}
