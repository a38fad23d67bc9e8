package persistence

import (
	"context"
	"testing"
	"time"

	"amas/internal/telemetry"
)

func TestSnapshotQueueDropsOnFullWithoutBlocking(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewSnapshotQueue(1, metrics)

	if dropped := q.Enqueue(ModelSnapshotRow{UserID: "u1"}); dropped {
		t.Fatalf("first enqueue into an empty queue should not drop")
	}
	dropped := q.Enqueue(ModelSnapshotRow{UserID: "u2"})
	if !dropped {
		t.Fatalf("enqueue into a full queue should drop rather than block")
	}
	if metrics.SnapshotsDropped != 1 {
		t.Fatalf("expected 1 dropped snapshot counted, got %d", metrics.SnapshotsDropped)
	}
}

func TestDecisionQueueBlocksThenDropsAfterDeadline(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewDecisionQueue(1, 10, 20*time.Millisecond, metrics, nil)

	if dropped := q.Enqueue(context.Background(), DecisionRecordRow{ID: "r1"}); dropped {
		t.Fatalf("first enqueue should not drop")
	}

	start := time.Now()
	dropped := q.Enqueue(context.Background(), DecisionRecordRow{ID: "r2"})
	elapsed := time.Since(start)

	if !dropped {
		t.Fatalf("enqueue into a full queue should eventually drop")
	}
	if elapsed < 15*time.Millisecond {
		t.Fatalf("expected enqueue to block close to the deadline, only waited %v", elapsed)
	}
	if metrics.DecisionRecordsDropped != 1 {
		t.Fatalf("expected 1 dropped decision record counted, got %d", metrics.DecisionRecordsDropped)
	}
}

func TestShouldSampleTraceTriggersAtHighWater(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewDecisionQueue(5, 2, time.Millisecond, metrics, nil)
	q.ch <- DecisionRecordRow{ID: "a"}
	q.ch <- DecisionRecordRow{ID: "b"}

	if !q.ShouldSampleTrace() {
		t.Fatalf("expected sampling to trigger once queue depth reaches high-water mark")
	}
	if !metrics.IsSampledTracing() {
		t.Fatalf("expected sampled-tracing metric to be set")
	}
}
