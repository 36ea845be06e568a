package resolver

import (
	"sync"
	"time"
)

// Strategy identifies one rung of the ladder for metrics and error
// reporting.
type Strategy string

const (
	StrategyMemo Strategy = "memo"
	StrategyPM   Strategy = "pm"
	StrategyOCI  Strategy = "oci"
	StrategyHTTP Strategy = "http"
)

// strategyCounters is the mutable per-strategy tally; Snapshot copies it
// out as a value so callers never observe a torn read.
type strategyCounters struct {
	Hits         int64
	Misses       int64
	ElapsedSum   time.Duration
	ElapsedCount int64
}

// StrategyMetrics is a read-only snapshot of one strategy's counters.
type StrategyMetrics struct {
	Hits         int64
	Misses       int64
	ElapsedSum   time.Duration
	ElapsedCount int64
}

// AvgElapsed returns the mean duration per attempt, or zero if there have
// been no attempts yet.
func (m StrategyMetrics) AvgElapsed() time.Duration {
	if m.ElapsedCount == 0 {
		return 0
	}
	return m.ElapsedSum / time.Duration(m.ElapsedCount)
}

// Metrics accumulates hit/miss/elapsed-time counters per strategy,
// guarded by a single mutex — the same fine-grained-lock-around-a-map
// discipline the teacher uses for its auth header cache.
type Metrics struct {
	mu    sync.Mutex
	byKey map[Strategy]*strategyCounters
}

func newMetrics() *Metrics {
	return &Metrics{byKey: make(map[Strategy]*strategyCounters)}
}

func (m *Metrics) counters(s Strategy) *strategyCounters {
	c, ok := m.byKey[s]
	if !ok {
		c = &strategyCounters{}
		m.byKey[s] = c
	}
	return c
}

func (m *Metrics) recordHit(s Strategy, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters(s)
	c.Hits++
	c.ElapsedSum += elapsed
	c.ElapsedCount++
}

func (m *Metrics) recordMiss(s Strategy, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters(s)
	c.Misses++
	c.ElapsedSum += elapsed
	c.ElapsedCount++
}

// Snapshot returns a read-only copy of every strategy's counters observed
// so far.
func (m *Metrics) Snapshot() map[Strategy]StrategyMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Strategy]StrategyMetrics, len(m.byKey))
	for k, c := range m.byKey {
		out[k] = StrategyMetrics{
			Hits:         c.Hits,
			Misses:       c.Misses,
			ElapsedSum:   c.ElapsedSum,
			ElapsedCount: c.ElapsedCount,
		}
	}
	return out
}
