package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"amas/internal/concurrency"
)

// Metrics tracks engine health counters. All fields are safe for concurrent
// use; nothing here sits on the event critical section.
type Metrics struct {
	// Error taxonomy counters (§7).
	InputSanitisations  int64
	NumericInstabilities int64
	StateCorruptions    int64
	Timeouts            int64
	PersistenceFailures int64

	// Queue health (§5 back-pressure).
	DecisionRecordsDropped int64
	SnapshotsDropped       int64
	SampledTracingActive   int32 // 0/1, atomic bool

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time

	// meanReward is a process-wide EMA of the reward the engine computes
	// per event, read lock-free by a health/metrics endpoint without
	// contending any user's critical section (§4.J-adjacent diagnostics).
	meanReward *concurrency.AtomicFloat64
}

// NewMetrics creates a zeroed metrics block stamped with the current time.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now(), meanReward: concurrency.NewAtomicFloat64(0)}
}

// ObserveReward folds one event's reward into the process-wide mean-reward
// EMA. Safe to call from any goroutine without synchronisation.
func (m *Metrics) ObserveReward(reward float64) {
	const emaFactor = 0.98
	for {
		old := m.meanReward.Load()
		next := emaFactor*old + (1-emaFactor)*reward
		if m.meanReward.CompareAndSwap(old, next) {
			return
		}
	}
}

// MeanReward returns the current process-wide mean-reward EMA.
func (m *Metrics) MeanReward() float64 { return m.meanReward.Load() }

func (m *Metrics) IncInputSanitisation()  { atomic.AddInt64(&m.InputSanitisations, 1) }
func (m *Metrics) IncNumericInstability() { atomic.AddInt64(&m.NumericInstabilities, 1) }
func (m *Metrics) IncStateCorruption()    { atomic.AddInt64(&m.StateCorruptions, 1) }
func (m *Metrics) IncTimeout()            { atomic.AddInt64(&m.Timeouts, 1) }
func (m *Metrics) IncPersistenceFailure() { atomic.AddInt64(&m.PersistenceFailures, 1) }
func (m *Metrics) IncDecisionRecordDropped() { atomic.AddInt64(&m.DecisionRecordsDropped, 1) }
func (m *Metrics) IncSnapshotDropped()       { atomic.AddInt64(&m.SnapshotsDropped, 1) }

func (m *Metrics) SetSampledTracing(active bool) {
	var v int32
	if active {
		v = 1
	}
	atomic.StoreInt32(&m.SampledTracingActive, v)
}

func (m *Metrics) IsSampledTracing() bool {
	return atomic.LoadInt32(&m.SampledTracingActive) == 1
}

func (m *Metrics) Touch() {
	m.mu.Lock()
	m.lastHealthCheck = time.Now()
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy for a health endpoint or log line.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	last := m.lastHealthCheck
	m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":          time.Since(m.startTime).Seconds(),
		"last_health_check":       last,
		"input_sanitisations":     atomic.LoadInt64(&m.InputSanitisations),
		"numeric_instabilities":   atomic.LoadInt64(&m.NumericInstabilities),
		"state_corruptions":       atomic.LoadInt64(&m.StateCorruptions),
		"timeouts":                atomic.LoadInt64(&m.Timeouts),
		"persistence_failures":    atomic.LoadInt64(&m.PersistenceFailures),
		"decision_records_dropped": atomic.LoadInt64(&m.DecisionRecordsDropped),
		"snapshots_dropped":       atomic.LoadInt64(&m.SnapshotsDropped),
		"sampled_tracing_active":  m.IsSampledTracing(),
		"mean_reward":             m.MeanReward(),
	}
}
