// Package metrics tracks fetch latencies and outcome counters of a batch run.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Histogram tracks a distribution of duration values and calculates percentiles.
type Histogram struct {
	samples []float64 // duration in milliseconds
	mu      sync.RWMutex
	maxSize int // maximum number of samples to keep
}

// NewHistogram creates a new histogram with a maximum sample size.
// When maxSize is exceeded, the oldest fifth of the samples is dropped.
func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Histogram{
		samples: make([]float64, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds a duration sample to the histogram.
func (h *Histogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, float64(d.Microseconds())/1000.0)
	if len(h.samples) > h.maxSize {
		h.samples = h.samples[h.maxSize/5:]
	}
}

// LatencyStats contains statistics for a latency histogram.
type LatencyStats struct {
	Mean  float64 `json:"mean"`  // milliseconds
	P50   float64 `json:"p50"`   // median
	P95   float64 `json:"p95"`   // 95th percentile
	Min   float64 `json:"min"`   // minimum
	Max   float64 `json:"max"`   // maximum
	Count int     `json:"count"` // number of samples
}

// Snapshot computes every statistic from a single sorted copy of the samples.
func (h *Histogram) Snapshot() LatencyStats {
	h.mu.RLock()
	sorted := make([]float64, len(h.samples))
	copy(sorted, h.samples)
	h.mu.RUnlock()

	if len(sorted) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// Percentile returns the value at the given percentile (0-100).
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.RLock()
	sorted := make([]float64, len(h.samples))
	copy(sorted, h.samples)
	h.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)
	return percentile(sorted, p)
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// Count returns the total number of samples.
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// Reset clears all samples.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}
