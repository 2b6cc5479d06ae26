package observability

import (
	"sync"
	"time"
)

// KindSnapshot summarizes handling of one message kind.
type KindSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// SagaSnapshot counts saga outcomes since start.
type SagaSnapshot struct {
	Completed int64 `json:"completed"`
	Denied    int64 `json:"denied"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped_events"`
}

// Snapshot is the full metrics view served over HTTP.
type Snapshot struct {
	UptimeSec       int64                   `json:"uptime_sec"`
	TotalMessages   int64                   `json:"total_messages"`
	TotalErrors     int64                   `json:"total_errors"`
	InFlight        int64                   `json:"in_flight"`
	RateLimitWaits  int64                   `json:"rate_limit_waits"`
	RateLimitWaitMs int64                   `json:"rate_limit_wait_ms"`
	Sagas           SagaSnapshot            `json:"sagas"`
	Kinds           map[string]KindSnapshot `json:"kinds"`
}

type kindStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics aggregates message-handling and saga-outcome counters.
type Metrics struct {
	mu             sync.Mutex
	start          time.Time
	kinds          map[string]*kindStats
	rateLimitWaits int64
	rateLimitWait  time.Duration
	sagas          SagaSnapshot
}

// CallSpan measures one message handling from Start to End.
type CallSpan struct {
	metrics *Metrics
	kind    string
	start   time.Time
}

// NewMetrics constructs an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		start: time.Now(),
		kinds: make(map[string]*kindStats),
	}
}

// Start begins a span for one message kind.
func (m *Metrics) Start(kind string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureKind(kind)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics: m,
		kind:    kind,
		start:   time.Now(),
	}
}

// End finishes the span with its outcome.
func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.kind, dur, err != nil)
}

// AddRateLimitWait records time spent waiting on the command rate limiter.
func (m *Metrics) AddRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.mu.Lock()
	m.rateLimitWaits++
	m.rateLimitWait += d
	m.mu.Unlock()
}

// AddCompleted counts a saga that reached Completed.
func (m *Metrics) AddCompleted() { m.addOutcome(func(s *SagaSnapshot) { s.Completed++ }) }

// AddDenied counts a saga that reached Denied.
func (m *Metrics) AddDenied() { m.addOutcome(func(s *SagaSnapshot) { s.Denied++ }) }

// AddFailed counts a saga that reached Failed.
func (m *Metrics) AddFailed() { m.addOutcome(func(s *SagaSnapshot) { s.Failed++ }) }

// AddDropped counts an event that could not be routed to an instance.
func (m *Metrics) AddDropped() { m.addOutcome(func(s *SagaSnapshot) { s.Dropped++ }) }

func (m *Metrics) addOutcome(apply func(*SagaSnapshot)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	apply(&m.sagas)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		UptimeSec:       int64(now.Sub(m.start).Seconds()),
		Kinds:           make(map[string]KindSnapshot),
		RateLimitWaits:  m.rateLimitWaits,
		RateLimitWaitMs: int64(m.rateLimitWait / time.Millisecond),
		Sagas:           m.sagas,
	}

	for kind, stats := range m.kinds {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Kinds[kind] = KindSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalMessages += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	return snap
}

func (m *Metrics) ensureKind(kind string) *kindStats {
	stats, ok := m.kinds[kind]
	if !ok {
		stats = &kindStats{}
		m.kinds[kind] = stats
	}
	return stats
}

func (m *Metrics) finish(kind string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureKind(kind)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}
