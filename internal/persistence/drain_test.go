package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"amas/internal/telemetry"
)

type fakeSnapshotRepo struct {
	mu    sync.Mutex
	rows  []ModelSnapshotRow
	failN int
}

func (f *fakeSnapshotRepo) Upsert(ctx context.Context, row ModelSnapshotRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("boom")
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSnapshotRepo) Get(ctx context.Context, userID string) (*ModelSnapshotRow, error) {
	return nil, nil
}

type fakeDecisionRepo struct {
	mu    sync.Mutex
	rows  []DecisionRecordRow
	failN int
}

func (f *fakeDecisionRepo) Append(ctx context.Context, row DecisionRecordRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("boom")
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeDecisionRepo) UpdateReward(ctx context.Context, id string, reward float64) error {
	return nil
}

func testDrainConfig() DrainConfig {
	cfg := DefaultDrainConfig()
	cfg.Backoff.InitialDelay = time.Millisecond
	cfg.Backoff.MaxDelay = 5 * time.Millisecond
	cfg.Backoff.Jitter = false
	cfg.Backoff.MaxRetries = 3
	cfg.Breaker.FailureThreshold = 10
	return cfg
}

func TestSnapshotDrainWritesQueuedRows(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewSnapshotQueue(4, metrics)
	repo := &fakeSnapshotRepo{}
	drain := NewSnapshotDrain(q, repo, testDrainConfig(), metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go drain.Run(ctx)

	q.Enqueue(ModelSnapshotRow{UserID: "u1"})
	q.Enqueue(ModelSnapshotRow{UserID: "u2"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		n := len(repo.rows)
		repo.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.rows) != 2 {
		t.Fatalf("expected 2 snapshot rows written, got %d", len(repo.rows))
	}
}

func TestDecisionDrainRetriesTransientFailureThenSucceeds(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewDecisionQueue(4, 100, time.Second, metrics, nil)
	repo := &fakeDecisionRepo{failN: 2}
	drain := NewDecisionDrain(q, repo, testDrainConfig(), metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drain.Run(ctx)

	q.Enqueue(ctx, DecisionRecordRow{ID: "r1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		n := len(repo.rows)
		repo.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected decision record to be persisted after transient retries")
}

func TestDecisionDrainDefaultsRateLimitWhenUnconfigured(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewDecisionQueue(4, 100, time.Second, metrics, nil)
	repo := &fakeDecisionRepo{}
	cfg := testDrainConfig()
	cfg.DecisionWriteRatePerSec = 0
	cfg.DecisionWriteBurst = 0
	drain := NewDecisionDrain(q, repo, cfg, metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drain.Run(ctx)

	q.Enqueue(ctx, DecisionRecordRow{ID: "r1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		n := len(repo.rows)
		repo.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected a zero-value rate config to fall back to a usable default limiter")
}

func TestDecisionDrainDropsAfterExhaustingRetries(t *testing.T) {
	metrics := telemetry.NewMetrics()
	q := NewDecisionQueue(4, 100, time.Second, metrics, nil)
	repo := &fakeDecisionRepo{failN: 1000}
	drain := NewDecisionDrain(q, repo, testDrainConfig(), metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drain.Run(ctx)

	q.Enqueue(ctx, DecisionRecordRow{ID: "r1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if metrics.DecisionRecordsDropped >= 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected decision record to be counted as dropped after exhausting retries")
}
