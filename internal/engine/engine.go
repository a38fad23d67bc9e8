// Package engine is the per-user orchestrator (§4.I): it owns the
// ModelBundle lifecycle, drives one event through perception, modeling,
// the ensemble/cold-start router, guardrails, reward computation, and
// asynchronous persistence, all under a per-user critical section.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"amas/internal/action"
	"amas/internal/amaserr"
	"amas/internal/coldstart"
	"amas/internal/concurrency"
	"amas/internal/config"
	"amas/internal/ensemble"
	"amas/internal/guardrails"
	"amas/internal/learning"
	"amas/internal/modeling"
	"amas/internal/perception"
	"amas/internal/persistence"
	"amas/internal/telemetry"
	"amas/internal/workers"
)

// ModelBundle is one user's complete in-memory model state, exclusively
// owned by the engine for as long as the user has in-flight work (§3
// "Ownership & lifecycle").
type ModelBundle struct {
	Bundle   *modeling.Bundle
	Summary  *perception.RollingSummary
	Ensemble *ensemble.State
	Members  []ensemble.Member

	LinUCB    *learning.LinUCB
	Thompson  *learning.ThompsonModel
	ACTR      *learning.ACTR
	Heuristic *learning.Heuristic

	PrevSmoothed *guardrails.Smoothed
	LastAction   *action.Action
	LastState    *modeling.UserState

	ErrorRateEMA         float64
	UpdatesSinceSnapshot int

	// Seq produces the monotone sequence number DecisionRecords are
	// totally ordered by, alongside timestamp, within one user's stream
	// (§5 "Ordering").
	Seq concurrency.SequenceGenerator
}

func newModelBundle(cfg *config.Config, log *telemetry.Logger, priors map[coldstart.UserType]float64) *ModelBundle {
	linucb := learning.NewLinUCB(cfg.FeatureDimension, cfg.LinUCBLambda, log)
	thompson := learning.NewThompsonModel(1)
	actr := learning.NewACTR()
	heuristic := learning.NewHeuristic()

	members := []ensemble.Member{
		{Name: ensemble.NameLinUCB, Learner: linucb, Enabled: cfg.Flags.LinUCBEnabled},
		{Name: ensemble.NameThompson, Learner: thompson, Enabled: cfg.Flags.ThompsonEnabled},
		{Name: ensemble.NameACTR, Learner: actr, Enabled: cfg.Flags.ACTREnabled},
		{Name: ensemble.NameHeuristic, Learner: heuristic, Enabled: cfg.Flags.HeuristicEnabled},
	}

	return &ModelBundle{
		Bundle:    modeling.NewBundle(),
		Summary:   perception.NewRollingSummary(),
		Ensemble:  ensemble.NewState(priors),
		Members:   members,
		LinUCB:    linucb,
		Thompson:  thompson,
		ACTR:      actr,
		Heuristic: heuristic,
		Seq:       *concurrency.NewSequenceGenerator(0),
	}
}

// Engine is the process-wide orchestrator. Its fields are read-only after
// construction except for the bundles map, a sharded concurrent map safe
// for unsynchronised access from multiple users' goroutines at once (§5
// "Shared resources").
type Engine struct {
	cfg *config.Config
	log *telemetry.Logger
	met *telemetry.Metrics

	locks *concurrency.UserLocks
	pool  *workers.Pool

	snapshotRepo persistence.SnapshotRepository
	decisionRepo persistence.DecisionRepository
	snapshotQ    *persistence.SnapshotQueue
	decisionQ    *persistence.DecisionQueue
	bundleCache  *persistence.BundleCache
	globalStats  *persistence.GlobalStatsCache

	actionSpace   []action.Action
	rewardWeights action.RewardWeights

	bundles *concurrency.LockFreeMap[string, *ModelBundle]
}

func New(
	cfg *config.Config,
	log *telemetry.Logger,
	met *telemetry.Metrics,
	pool *workers.Pool,
	snapshotRepo persistence.SnapshotRepository,
	decisionRepo persistence.DecisionRepository,
	snapshotQ *persistence.SnapshotQueue,
	decisionQ *persistence.DecisionQueue,
	bundleCache *persistence.BundleCache,
	globalStats *persistence.GlobalStatsCache,
) *Engine {
	return &Engine{
		cfg:           cfg,
		log:           log,
		met:           met,
		locks:         concurrency.NewUserLocks(),
		pool:          pool,
		snapshotRepo:  snapshotRepo,
		decisionRepo:  decisionRepo,
		snapshotQ:     snapshotQ,
		decisionQ:     decisionQ,
		bundleCache:   bundleCache,
		globalStats:   globalStats,
		actionSpace:   action.ACTION_SPACE,
		rewardWeights: action.WeightsForProfile(string(cfg.RewardProfile)),
		bundles:       concurrency.NewLockFreeMap[string, *ModelBundle](64),
	}
}

func (e *Engine) getBundle(userID string) (*ModelBundle, bool) {
	return e.bundles.Get(userID)
}

func (e *Engine) setBundle(userID string, b *ModelBundle) {
	e.bundles.Put(userID, b)
}

// loadOrMaterialise returns the in-memory bundle for userID, restoring
// from the bundle cache or durable snapshot if not already resident, or
// materialising fresh from the global cold-start priors otherwise (§3
// "materialised on first event (from snapshot if present, else from
// priors)").
func (e *Engine) loadOrMaterialise(ctx context.Context, userID string) (*ModelBundle, error) {
	if b, ok := e.getBundle(userID); ok {
		return b, nil
	}

	priors := coldstart.DefaultPriors
	if e.globalStats != nil {
		priors = e.globalStats.Priors(ctx)
	}
	bundle := newModelBundle(e.cfg, e.log, priors)

	var payload []byte
	if e.bundleCache != nil {
		if cached, hit, err := e.bundleCache.Get(ctx, userID); err == nil && hit {
			payload = cached
		}
	}
	if payload == nil && e.snapshotRepo != nil {
		if row, err := e.snapshotRepo.Get(ctx, userID); err == nil && row != nil {
			payload = row.Payload
		}
	}
	if payload != nil {
		if err := unmarshalBundle(bundle, payload); err != nil {
			if e.log != nil {
				e.log.Warn("engine: discarding unrestorable snapshot, starting fresh", "userId", userID, "error", err.Error())
			}
			bundle = newModelBundle(e.cfg, e.log, priors)
		}
	}

	e.setBundle(userID, bundle)
	return bundle, nil
}

func hourOfDay(unixMs int64) int {
	return time.UnixMilli(unixMs).UTC().Hour()
}

// ensembleOffload adapts one Select call on the ensemble into the
// learning.Learner interface the worker pool already fans tasks over, so
// the ensemble's own aggregation runs inside the pool's bounded
// concurrency without modifying the ensemble or worker packages (§4.J
// "may be offloaded to a process-wide worker pool").
type ensembleOffload struct {
	state    *ensemble.State
	members  []ensemble.Member
	decision ensemble.Decision
}

func (o *ensembleOffload) Name() string { return "ensemble-offload" }

func (o *ensembleOffload) Select(state modeling.UserState, actions []action.Action, ctx learning.Context) []learning.Vote {
	o.decision = o.state.Select(o.members, state, actions, ctx)
	return nil
}

func (o *ensembleOffload) Update(modeling.UserState, action.Action, float64, learning.Context) {}

func (e *Engine) selectDecision(ctx context.Context, bundle *ModelBundle, state modeling.UserState, lctx learning.Context) ensemble.Decision {
	if e.pool == nil || !e.cfg.Flags.WorkerOffload {
		return bundle.Ensemble.Select(bundle.Members, state, e.actionSpace, lctx)
	}

	offload := &ensembleOffload{state: bundle.Ensemble, members: bundle.Members}
	if _, err := e.pool.SubmitSelect(ctx, workers.SelectTask{Learner: offload, State: state, Actions: e.actionSpace, Ctx: lctx}); err != nil {
		if e.log != nil {
			e.log.Warn("engine: worker pool select failed, falling back inline", "error", err.Error())
		}
		return bundle.Ensemble.Select(bundle.Members, state, e.actionSpace, lctx)
	}
	return offload.decision
}

// ProcessEvent drives one interaction through the full pipeline (§5 "Per
// user, an exclusive critical section surrounds the whole pipeline for
// one event", steps 1-10).
func (e *Engine) ProcessEvent(ctx context.Context, userID, sessionID string, ev perception.RawEvent, deadline time.Time) (retAction action.Action, retState modeling.UserState, retSummary ExplanationSummary, retErr error) {
	if !deadline.IsZero() && time.Now().After(deadline) {
		return action.Action{}, modeling.UserState{}, ExplanationSummary{}, fmt.Errorf("engine: deadline already passed for user %s: %w", userID, amaserr.ErrTimeout)
	}

	unlock := e.locks.Lock(userID)
	defer unlock()
	// A panic inside this user's pipeline becomes a StateCorruption error
	// for this user only; the deferred unlock still releases the lock.
	defer func() {
		if r := recover(); r != nil {
			retAction, retState, retSummary = action.Action{}, modeling.UserState{}, ExplanationSummary{}
			retErr = fmt.Errorf("engine: pipeline panic for user %s: %v: %w", userID, r, amaserr.ErrStateCorruption)
		}
	}()

	pipelineStart := time.Now()
	trace := newTracer(ev.TimestampUnixMs)

	bundle, err := e.loadOrMaterialise(ctx, userID)
	if err != nil {
		return action.Action{}, modeling.UserState{}, ExplanationSummary{}, err
	}

	stepStart := time.Now()
	fv := perception.Extract(ev, bundle.Summary)
	state := bundle.Bundle.Update(fv, ev.TimestampUnixMs)
	bundle.Summary.Push(ev)
	trace.record("modeling", "bundle.Update", stepStart.UnixMilli(), time.Since(stepStart).Milliseconds(),
		fmt.Sprintf("wordId=%s correct=%v", ev.WordID, ev.IsCorrect),
		fmt.Sprintf("A=%.3f F=%.3f M=%.3f", state.A, state.F, state.M))

	if !deadline.IsZero() && time.Now().After(deadline) {
		return action.Action{}, state, ExplanationSummary{}, fmt.Errorf("engine: deadline exceeded mid-pipeline for user %s: %w", userID, amaserr.ErrTimeout)
	}

	lctx := learning.Context{
		RecentErrorRate: bundle.ErrorRateEMA,
		ResponseTimeMs:  ev.ResponseTimeMs,
		HourOfDay:       hourOfDay(ev.TimestampUnixMs),
	}

	stepStart = time.Now()
	decision := e.selectDecision(ctx, bundle, state, lctx)
	trace.record("select", "ensemble.Select", stepStart.UnixMilli(), time.Since(stepStart).Milliseconds(),
		"", fmt.Sprintf("source=%s actionIdx=%d", decision.Source, decision.Action.Index))

	stepStart = time.Now()
	chosen, smoothed := guardrails.Apply(state, decision.Action, bundle.PrevSmoothed, action.DefaultSmoothingTau, e.actionSpace)
	bundle.PrevSmoothed = &smoothed
	trace.record("guardrails", "guardrails.Apply", stepStart.UnixMilli(), time.Since(stepStart).Milliseconds(),
		"", chosen.String())

	reward, ok := ComputeReward(state, ev, e.rewardWeights)
	if ok {
		if e.met != nil {
			e.met.ObserveReward(reward)
		}
		stepStart = time.Now()
		bundle.Ensemble.Update(bundle.Members, state, chosen, reward, lctx)
		bundle.Ensemble.ColdStart.RecordProbe(reward, lctx.RecentErrorRate, ev.ResponseTimeMs, lctx.RecentErrorRate)
		trace.record("update", "ensemble.Update", stepStart.UnixMilli(), time.Since(stepStart).Milliseconds(),
			fmt.Sprintf("reward=%.3f", reward), "")
	} else if e.log != nil {
		e.log.Warn("engine: skipped update, non-finite reward", "userId", userID)
	}

	const errorRateEMAFactor = 0.9
	incorrect := 0.0
	if !ev.IsCorrect {
		incorrect = 1.0
	}
	bundle.ErrorRateEMA = errorRateEMAFactor*bundle.ErrorRateEMA + (1-errorRateEMAFactor)*incorrect

	bundle.LastAction = &chosen
	bundle.LastState = &state

	summary := buildExplanation(decision, string(bundle.Ensemble.ColdStart.Phase), state)

	totalDuration := time.Since(pipelineStart)
	e.enqueueDecisionRecord(ctx, userID, sessionID, bundle, decision, chosen, reward, ok, trace, totalDuration)

	bundle.UpdatesSinceSnapshot++
	if e.cfg.SnapshotEveryN > 0 && bundle.UpdatesSinceSnapshot >= e.cfg.SnapshotEveryN {
		e.enqueueSnapshot(ctx, userID, bundle)
		bundle.UpdatesSinceSnapshot = 0
	}

	return chosen, state, summary, nil
}

func (e *Engine) enqueueDecisionRecord(ctx context.Context, userID, sessionID string, bundle *ModelBundle, decision ensemble.Decision, chosen action.Action, reward float64, rewardOK bool, trace *tracer, totalDuration time.Duration) {
	if e.decisionQ == nil {
		return
	}

	sampled := e.decisionQ.ShouldSampleTrace()

	weightsJSON, _ := json.Marshal(bundle.Ensemble.Weights)
	votesJSON := []byte("null")
	traceJSON := []byte("null")
	if !sampled {
		votesJSON, _ = json.Marshal(decision.MemberVotes)
		traceJSON, _ = json.Marshal(trace.stages)
	}
	actionJSON, _ := json.Marshal(chosen)

	row := persistence.DecisionRecordRow{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   sessionID,
		Timestamp:   time.Now(),
		Seq:         bundle.Seq.Next(),
		Source:      decision.Source,
		Phase:       string(bundle.Ensemble.ColdStart.Phase),
		WeightsJSON: string(weightsJSON),
		VotesJSON:   string(votesJSON),
		ActionJSON:  string(actionJSON),
		Confidence:  decimal.NewFromFloat(decision.Confidence),
		DurationMs:  int(totalDuration.Milliseconds()),
		TraceJSON:   string(traceJSON),
	}
	if rewardOK {
		r := decimal.NewFromFloat(reward)
		row.Reward = &r
	}

	if dropped := e.decisionQ.Enqueue(ctx, row); dropped && e.log != nil {
		e.log.Warn("engine: decision record dropped", "userId", userID)
	}
}

func (e *Engine) enqueueSnapshot(ctx context.Context, userID string, bundle *ModelBundle) {
	payload, err := marshalBundle(bundle)
	if err != nil {
		if e.log != nil {
			e.log.Error("engine: failed to marshal snapshot", err, "userId", userID)
		}
		return
	}
	if e.bundleCache != nil {
		_ = e.bundleCache.Put(ctx, userID, payload)
	}
	if e.snapshotQ != nil {
		row := persistence.ModelSnapshotRow{UserID: userID, Payload: payload, Version: SnapshotVersion}
		if dropped := e.snapshotQ.Enqueue(row); dropped && e.log != nil {
			e.log.Warn("engine: snapshot dropped", "userId", userID)
		}
	}
}

// GetStrategy is the read-only RPC: it returns the last emitted action
// and state for a user without advancing the pipeline (§6).
func (e *Engine) GetStrategy(userID string) (action.Action, modeling.UserState, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	bundle, ok := e.getBundle(userID)
	if !ok || bundle.LastAction == nil || bundle.LastState == nil {
		return action.Action{}, modeling.UserState{}, fmt.Errorf("engine: no strategy materialised yet for user %s", userID)
	}
	return *bundle.LastAction, *bundle.LastState, nil
}

// Snapshot serialises a user's full bundle state for external persistence
// (§6).
func (e *Engine) Snapshot(userID string) ([]byte, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	bundle, ok := e.getBundle(userID)
	if !ok {
		return nil, fmt.Errorf("engine: no bundle materialised for user %s", userID)
	}
	return marshalBundle(bundle)
}

// Restore replaces a user's in-memory bundle with the given serialised
// payload, rejecting schema downgrades (§6, §9 open question (iii)).
func (e *Engine) Restore(userID string, payload []byte) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	bundle, ok := e.getBundle(userID)
	if !ok {
		priors := coldstart.DefaultPriors
		bundle = newModelBundle(e.cfg, e.log, priors)
	}
	if err := unmarshalBundle(bundle, payload); err != nil {
		return err
	}
	e.setBundle(userID, bundle)
	return nil
}
