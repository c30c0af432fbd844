package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	// ceil(p*n)-1 against n=10.
	assert.Equal(t, 50.0, nearestRank(sorted, 0.50))
	assert.Equal(t, 100.0, nearestRank(sorted, 0.95))
	assert.Equal(t, 100.0, nearestRank(sorted, 0.99))
	assert.Equal(t, 10.0, nearestRank(sorted, 0.0))
	assert.Equal(t, 100.0, nearestRank(sorted, 1.0))
}

func TestNearestRankSingleSample(t *testing.T) {
	sorted := []float64{42}
	for _, p := range []float64{0.5, 0.95, 0.99} {
		assert.Equal(t, 42.0, nearestRank(sorted, p))
	}
}

func TestComputeStatsOrdering(t *testing.T) {
	// Unsorted, skewed sample; percentiles must come out monotone.
	samples := []time.Duration{
		90 * time.Microsecond,
		5 * time.Microsecond,
		800 * time.Microsecond,
		12 * time.Microsecond,
		40 * time.Microsecond,
		41 * time.Microsecond,
		39 * time.Microsecond,
	}

	stats := computeStats(samples)
	assert.LessOrEqual(t, stats.Min, stats.P50)
	assert.LessOrEqual(t, stats.P50, stats.P95)
	assert.LessOrEqual(t, stats.P95, stats.P99)
	assert.LessOrEqual(t, stats.P99, stats.Max)
	assert.Equal(t, 5.0, stats.Min)
	assert.Equal(t, 800.0, stats.Max)
}

func TestComputeStatsExactValues(t *testing.T) {
	samples := []time.Duration{
		1 * time.Microsecond,
		2 * time.Microsecond,
		3 * time.Microsecond,
		4 * time.Microsecond,
	}

	stats := computeStats(samples)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 2.5, stats.Mean)
	assert.Equal(t, 2.0, stats.P50) // ceil(0.5*4)-1 = 1
	assert.Equal(t, 4.0, stats.P95) // ceil(0.95*4)-1 = 3
	assert.Equal(t, 4.0, stats.P99)
	assert.Equal(t, 4.0, stats.Max)
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Equal(t, LatencyStats{}, computeStats(nil))
}
