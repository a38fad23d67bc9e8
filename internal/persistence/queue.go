package persistence

import (
	"context"
	"time"

	"amas/internal/telemetry"
)

// SnapshotQueue is MPSC with drop-on-full: a full queue drops the new
// snapshot outright, trusting the next opportunistic snapshot to catch up
// (§4.K, §5 "Shared resources").
type SnapshotQueue struct {
	ch      chan ModelSnapshotRow
	metrics *telemetry.Metrics
}

func NewSnapshotQueue(capacity int, metrics *telemetry.Metrics) *SnapshotQueue {
	return &SnapshotQueue{ch: make(chan ModelSnapshotRow, capacity), metrics: metrics}
}

// Enqueue never blocks: on a full queue it drops the snapshot and counts
// it.
func (q *SnapshotQueue) Enqueue(row ModelSnapshotRow) (dropped bool) {
	select {
	case q.ch <- row:
		return false
	default:
		if q.metrics != nil {
			q.metrics.IncSnapshotDropped()
		}
		return true
	}
}

func (q *SnapshotQueue) Chan() <-chan ModelSnapshotRow { return q.ch }

// DecisionQueue is MPSC that never silently drops: on a full queue the
// caller blocks up to blockDeadline, after which the record is dropped
// and counted, and the caller proceeds (§4.K, §5 "Back-pressure").
type DecisionQueue struct {
	ch             chan DecisionRecordRow
	blockDeadline  time.Duration
	highWater      int
	metrics        *telemetry.Metrics
	log            *telemetry.Logger
}

func NewDecisionQueue(capacity int, highWater int, blockDeadline time.Duration, metrics *telemetry.Metrics, log *telemetry.Logger) *DecisionQueue {
	return &DecisionQueue{
		ch:            make(chan DecisionRecordRow, capacity),
		blockDeadline: blockDeadline,
		highWater:     highWater,
		metrics:       metrics,
		log:           log,
	}
}

// Enqueue blocks up to q.blockDeadline on a full queue before giving up
// and counting the record as dropped.
func (q *DecisionQueue) Enqueue(ctx context.Context, row DecisionRecordRow) (dropped bool) {
	select {
	case q.ch <- row:
		return false
	default:
	}

	timer := time.NewTimer(q.blockDeadline)
	defer timer.Stop()
	select {
	case q.ch <- row:
		return false
	case <-timer.C:
		if q.metrics != nil {
			q.metrics.IncDecisionRecordDropped()
		}
		if q.log != nil {
			q.log.Warn("decision record dropped after block deadline", "userId", row.UserID, "deadline", q.blockDeadline.String())
		}
		return true
	case <-ctx.Done():
		if q.metrics != nil {
			q.metrics.IncDecisionRecordDropped()
		}
		return true
	}
}

// Len reports the current queue depth, used to decide whether to switch
// to sampled tracing (§5 "Back-pressure").
func (q *DecisionQueue) Len() int { return len(q.ch) }

// ShouldSampleTrace reports whether the queue has crossed its high-water
// mark, in which case the caller should store records at 1/N rather than
// every event, without ever disabling model updates.
func (q *DecisionQueue) ShouldSampleTrace() bool {
	sampling := q.Len() >= q.highWater
	if sampling && q.metrics != nil {
		q.metrics.SetSampledTracing(true)
	} else if q.metrics != nil {
		q.metrics.SetSampledTracing(false)
	}
	return sampling
}

func (q *DecisionQueue) Chan() <-chan DecisionRecordRow { return q.ch }
