package bench

import (
	"math"
	"sort"
	"time"
)

// LatencyStats summarizes a send-latency sample in microseconds.
type LatencyStats struct {
	Min  float64 `json:"min_us"`
	Mean float64 `json:"mean_us"`
	P50  float64 `json:"p50_us"`
	P95  float64 `json:"p95_us"`
	P99  float64 `json:"p99_us"`
	Max  float64 `json:"max_us"`
}

// nearestRank picks the order statistic for percentile p from a sorted
// sample: index = ceil(p*n) - 1, clamped to [0, n-1].
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// computeStats reduces a latency sample. An empty sample yields zeroes.
// Min <= P50 <= P95 <= P99 <= Max holds by construction.
func computeStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	us := make([]float64, len(samples))
	sum := 0.0
	for i, d := range samples {
		us[i] = float64(d.Nanoseconds()) / 1e3
		sum += us[i]
	}
	sort.Float64s(us)

	return LatencyStats{
		Min:  us[0],
		Mean: sum / float64(len(us)),
		P50:  nearestRank(us, 0.50),
		P95:  nearestRank(us, 0.95),
		P99:  nearestRank(us, 0.99),
		Max:  us[len(us)-1],
	}
}
