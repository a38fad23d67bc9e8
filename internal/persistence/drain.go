package persistence

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"amas/internal/concurrency"
	"amas/internal/telemetry"
)

// DrainConfig tunes the two background consumers that empty the snapshot
// and decision queues into their repositories (§4.K "Neither is on the
// synchronous response path").
type DrainConfig struct {
	Backoff concurrency.BackoffConfig
	Breaker concurrency.CircuitBreakerConfig

	// DecisionWriteRatePerSec/DecisionWriteBurst pace DecisionDrain's
	// writes so a burst of events can't saturate Postgres; the decision
	// queue's own depth is what decides whether tracing downgrades to
	// sampled (§5 "Back-pressure"), this limiter only smooths the write
	// rate the drain issues once records are already queued.
	DecisionWriteRatePerSec float64
	DecisionWriteBurst      int
}

// DefaultDrainConfig mirrors the PersistenceFailure handling of §7 kind 5:
// decision records retry with backoff, snapshots are a best-effort upsert
// that simply waits for the next opportunistic write on failure.
func DefaultDrainConfig() DrainConfig {
	backoff := concurrency.DefaultBackoffConfig()
	backoff.MaxRetries = 5
	return DrainConfig{
		Backoff: backoff,
		Breaker: concurrency.CircuitBreakerConfig{
			Name:             "persistence",
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
			Timeout:          5 * time.Second,
		},
		DecisionWriteRatePerSec: 200,
		DecisionWriteBurst:      50,
	}
}

// SnapshotDrain consumes SnapshotQueue and upserts each row. A failed
// upsert is dropped outright — per §4.K the next periodic snapshot
// supersedes it — but a circuit breaker still shields the repository from
// a storm of doomed calls during an outage.
type SnapshotDrain struct {
	queue   *SnapshotQueue
	repo    SnapshotRepository
	breaker *concurrency.CircuitBreaker
	metrics *telemetry.Metrics
	log     *telemetry.Logger
}

func NewSnapshotDrain(queue *SnapshotQueue, repo SnapshotRepository, cfg DrainConfig, metrics *telemetry.Metrics, log *telemetry.Logger) *SnapshotDrain {
	return &SnapshotDrain{
		queue:   queue,
		repo:    repo,
		breaker: concurrency.NewCircuitBreaker(cfg.Breaker),
		metrics: metrics,
		log:     log,
	}
}

// Run drains the queue until ctx is cancelled. Intended to run as a single
// background goroutine per process (§4.K, §9 "background loops ... as
// independent tasks with their own timers").
func (d *SnapshotDrain) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-d.queue.Chan():
			if !ok {
				return
			}
			err := d.breaker.Call(func() error {
				return d.repo.Upsert(ctx, row)
			})
			if err != nil {
				if d.metrics != nil {
					d.metrics.IncPersistenceFailure()
				}
				if d.log != nil {
					d.log.Warn("persistence: snapshot write failed, will catch up on next snapshot", "userId", row.UserID, "error", err.Error())
				}
			}
		}
	}
}

// DecisionDrain consumes DecisionQueue and appends each row, retrying
// transient failures with exponential backoff before giving up on a
// single record (§4.K "decision records queue re-tries").
type DecisionDrain struct {
	queue   *DecisionQueue
	repo    DecisionRepository
	breaker *concurrency.CircuitBreaker
	backoff concurrency.BackoffConfig
	limiter *rate.Limiter
	metrics *telemetry.Metrics
	log     *telemetry.Logger
}

func NewDecisionDrain(queue *DecisionQueue, repo DecisionRepository, cfg DrainConfig, metrics *telemetry.Metrics, log *telemetry.Logger) *DecisionDrain {
	ratePerSec := cfg.DecisionWriteRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 200
	}
	burst := cfg.DecisionWriteBurst
	if burst <= 0 {
		burst = 50
	}
	return &DecisionDrain{
		queue:   queue,
		repo:    repo,
		breaker: concurrency.NewCircuitBreaker(cfg.Breaker),
		backoff: cfg.Backoff,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		metrics: metrics,
		log:     log,
	}
}

func (d *DecisionDrain) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-d.queue.Chan():
			if !ok {
				return
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.appendWithRetry(ctx, row)
		}
	}
}

func (d *DecisionDrain) appendWithRetry(ctx context.Context, row DecisionRecordRow) {
	retry := concurrency.NewExponentialBackoff(d.backoff)
	for {
		err := d.breaker.Call(func() error {
			return d.repo.Append(ctx, row)
		})
		if err == nil {
			return
		}
		if d.metrics != nil {
			d.metrics.IncPersistenceFailure()
		}
		delay := retry.NextDelay()
		if delay == 0 {
			if d.log != nil {
				d.log.Warn("persistence: decision record append exhausted retries, dropping", "userId", row.UserID, "attempts", retry.Attempts())
			}
			if d.metrics != nil {
				d.metrics.IncDecisionRecordDropped()
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
