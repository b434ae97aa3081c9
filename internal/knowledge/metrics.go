package knowledge

import (
	"sync"
	"time"
)

// RetrievalMetrics accumulates search-path counters. One accumulator is
// shared by all search operations of a Store; a single mutex guards the
// counters so a snapshot is internally consistent.
type RetrievalMetrics struct {
	mu           sync.Mutex
	requests     int64
	totalLatency time.Duration
	totalResults int64
	errors       int64
}

// MetricsSnapshot is a consistent copy of the accumulated counters.
type MetricsSnapshot struct {
	Requests     int64
	TotalLatency time.Duration
	TotalResults int64
	Errors       int64
}

func NewRetrievalMetrics() *RetrievalMetrics {
	return &RetrievalMetrics{}
}

// RecordSearch counts one completed search call.
func (m *RetrievalMetrics) RecordSearch(latency time.Duration, resultCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.totalLatency += latency
	m.totalResults += int64(resultCount)
}

// RecordError counts one failed embed or backend query.
func (m *RetrievalMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Snapshot copies the counters under the same lock the writers use.
func (m *RetrievalMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:     m.requests,
		TotalLatency: m.totalLatency,
		TotalResults: m.totalResults,
		Errors:       m.errors,
	}
}

// AverageLatency is the mean search latency, zero before any request.
func (s MetricsSnapshot) AverageLatency() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Requests)
}
