package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunMetrics tracks fetch latencies and outcomes of a batch run.
type RunMetrics struct {
	// Latency histograms (in milliseconds)
	ParticipantsLatency *Histogram
	DecklistLatency     *Histogram
	UnitLatency         *Histogram

	// Counters
	UnitsProcessed atomic.Uint64
	UnitsFailed    atomic.Uint64
	Records        atomic.Uint64
	Decklists      atomic.Uint64
	EmptyDecklists atomic.Uint64
	FetchErrors    atomic.Uint64

	startTime time.Time
	mu        sync.RWMutex
}

// NewRunMetrics creates a new metrics collector.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		ParticipantsLatency: NewHistogram(1000),
		DecklistLatency:     NewHistogram(10000),
		UnitLatency:         NewHistogram(1000),
		startTime:           time.Now(),
	}
}

// RecordParticipants records a participant table fetch.
func (m *RunMetrics) RecordParticipants(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ParticipantsLatency.Record(d)
	if err != nil {
		m.FetchErrors.Add(1)
	}
}

// RecordDecklist records a decklist fetch. Empty decklists are counted
// separately from other failures.
func (m *RunMetrics) RecordDecklist(d time.Duration, empty bool, err error) {
	if m == nil {
		return
	}
	m.DecklistLatency.Record(d)
	switch {
	case empty:
		m.EmptyDecklists.Add(1)
	case err != nil:
		m.FetchErrors.Add(1)
	default:
		m.Decklists.Add(1)
	}
}

// RecordUnit records one consumed tournament.
func (m *RunMetrics) RecordUnit(d time.Duration, records int, failed bool) {
	if m == nil {
		return
	}
	m.UnitLatency.Record(d)
	m.UnitsProcessed.Add(1)
	m.Records.Add(uint64(records))
	if failed {
		m.UnitsFailed.Add(1)
	}
}

// RunStats contains the computed statistics from metrics.
type RunStats struct {
	ParticipantsLatency LatencyStats `json:"participants_latency"`
	DecklistLatency     LatencyStats `json:"decklist_latency"`
	UnitLatency         LatencyStats `json:"unit_latency"`

	UnitsProcessed uint64  `json:"units_processed"`
	UnitsFailed    uint64  `json:"units_failed"`
	Records        uint64  `json:"records"`
	Decklists      uint64  `json:"decklists"`
	EmptyDecklists uint64  `json:"empty_decklists"`
	FetchErrors    uint64  `json:"fetch_errors"`
	SuccessRate    float64 `json:"success_rate"` // percentage of units without errors

	Elapsed string `json:"elapsed"`
}

// GetStats returns a snapshot of the current statistics.
func (m *RunMetrics) GetStats() *RunStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := m.UnitsProcessed.Load()
	failed := m.UnitsFailed.Load()

	successRate := 0.0
	if units > 0 {
		successRate = (float64(units-failed) / float64(units)) * 100
	}

	return &RunStats{
		ParticipantsLatency: m.ParticipantsLatency.Snapshot(),
		DecklistLatency:     m.DecklistLatency.Snapshot(),
		UnitLatency:         m.UnitLatency.Snapshot(),
		UnitsProcessed:      units,
		UnitsFailed:         failed,
		Records:             m.Records.Load(),
		Decklists:           m.Decklists.Load(),
		EmptyDecklists:      m.EmptyDecklists.Load(),
		FetchErrors:         m.FetchErrors.Load(),
		SuccessRate:         successRate,
		Elapsed:             time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Reset clears all metrics.
func (m *RunMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ParticipantsLatency.Reset()
	m.DecklistLatency.Reset()
	m.UnitLatency.Reset()

	m.UnitsProcessed.Store(0)
	m.UnitsFailed.Store(0)
	m.Records.Store(0)
	m.Decklists.Store(0)
	m.EmptyDecklists.Store(0)
	m.FetchErrors.Store(0)

	m.startTime = time.Now()
}
