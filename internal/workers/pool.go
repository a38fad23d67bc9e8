// Package workers bounds the event path's heaviest pure-numerical work
// — a learner's Select over the 24 actions and Cholesky (re-)decomposition
// — with a process-wide concurrency limit sized to the host's CPU count.
// A Submit* call runs its task on the caller's own goroutine once a slot
// is free; FanOutSelect spreads tasks over goroutines. Workers hold no
// user state: every task is a plain value in, plain value out (§4.J).
package workers

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"amas/internal/action"
	"amas/internal/learning"
	"amas/internal/linalg"
	"amas/internal/modeling"
	"amas/internal/telemetry"
)

// SelectTask asks the pool to score a batch of actions against a single
// learner, serialised as plain values per §4.J's wire contract.
type SelectTask struct {
	Learner learning.Learner
	State   modeling.UserState
	Actions []action.Action
	Ctx     learning.Context
}

// SelectResult is a learner's scored votes, returned to the caller's
// owner bundle for the orchestrator to fold under the user's critical
// section.
type SelectResult struct {
	Votes []learning.Vote
}

// CholeskyTask asks the pool to (re-)decompose a covariance matrix.
type CholeskyTask struct {
	A      *linalg.Matrix
	Lambda float64
}

type CholeskyResult struct {
	L   *linalg.Matrix
	Err error
}

// Pool is the process-wide worker pool. It is stateless between calls —
// Submit* methods wait for a free slot, then run the task on the caller's
// goroutine; they never retain state between invocations (§4.J "Workers
// hold no user state").
type Pool struct {
	size int
	sem  chan struct{}
	log  *telemetry.Logger
}

// SizeCPUBound returns min(logical CPU count, configuredMax), falling
// back to runtime.NumCPU if gopsutil can't read the host (§4.J "sized to
// min(CPUs, configuredMax)").
func SizeCPUBound(configuredMax int) int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if configuredMax > 0 && configuredMax < n {
		return configuredMax
	}
	return n
}

// New creates a pool with the given concurrency limit.
func New(size int, log *telemetry.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size, sem: make(chan struct{}, size), log: log}
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() { <-p.sem }

// SubmitSelect runs one learner's Select on the caller's own goroutine,
// bounded by the pool's concurrency limit.
func (p *Pool) SubmitSelect(ctx context.Context, t SelectTask) (SelectResult, error) {
	if err := p.acquire(ctx); err != nil {
		return SelectResult{}, err
	}
	defer p.release()

	votes := t.Learner.Select(t.State, t.Actions, t.Ctx)
	return SelectResult{Votes: votes}, nil
}

// SubmitCholesky runs a full Cholesky re-decomposition on the caller's
// own goroutine, bounded by the pool's concurrency limit.
func (p *Pool) SubmitCholesky(ctx context.Context, t CholeskyTask) (CholeskyResult, error) {
	if err := p.acquire(ctx); err != nil {
		return CholeskyResult{}, err
	}
	defer p.release()

	l, err := linalg.Cholesky(t.A, t.Lambda)
	return CholeskyResult{L: l, Err: err}, nil
}

// FanOutSelect runs SubmitSelect for every task concurrently via
// errgroup, preserving task order in the result slice (§4.J "LinUCB
// select over 24 actions" is the canonical caller, fanning one task per
// learner rather than per action).
func (p *Pool) FanOutSelect(ctx context.Context, tasks []SelectTask) ([]SelectResult, error) {
	results := make([]SelectResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			r, err := p.SubmitSelect(gctx, t)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
