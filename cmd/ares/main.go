package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"amas/internal/action"
	"amas/internal/bayesopt"
	"amas/internal/config"
	"amas/internal/engine"
	"amas/internal/perception"
	"amas/internal/persistence"
	"amas/internal/stats"
	"amas/internal/telemetry"
	"amas/internal/workers"
)

// ingestEvent is one line of the stdin event feed: a RawEvent plus the
// routing identifiers the engine keys per-user state on. perception.RawEvent
// carries no JSON tags, so its embedded fields are matched case-insensitively
// the same way the rest of the wire contract is (§4.C).
type ingestEvent struct {
	UserID    string
	SessionID string
	perception.RawEvent
}

// weeklyEvaluator adapts the stats tracker into the bayesopt loop's
// WeeklyEvaluator: it reports the process-wide mean reward across all known
// users for the current ISO week, independent of the params argument, since
// this process does not swap reward-weight profiles live (§4.L, §4.M.1
// "not per user — the optimiser tunes process-wide...").
type weeklyEvaluator struct {
	tracker *stats.Tracker
	users   func() []string
}

func (e weeklyEvaluator) EvaluateWeek(params []float64) (float64, error) {
	year, week := time.Now().ISOWeek()
	isoWeek := fmt.Sprintf("%d-W%02d", year, week)

	var sum float64
	var count int
	for _, userID := range e.users() {
		agg, err := e.tracker.WeeklyAggregate(userID, isoWeek)
		if err != nil {
			continue
		}
		sum += agg.MeanReward
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	logger := telemetry.New("amas-engine", nil)
	metrics := telemetry.NewMetrics()

	otelShutdown, err := telemetry.SetupOTelSDK(context.Background())
	if err != nil {
		log.Fatal("otel setup failed: ", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := gorm.Open(postgres.Open(cfg.DBDSN()), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		log.Fatal("db connection failed: ", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := persistence.AutoMigrate(db); err != nil {
		log.Fatal("persistence auto-migrate failed: ", err)
	}

	snapshotRepo := persistence.NewGormSnapshotRepository(db)
	decisionRepo := persistence.NewGormDecisionRepository(db)
	bundleCache := persistence.NewBundleCache(cfg.RedisAddr)
	globalStats := persistence.NewGlobalStatsCache(cfg.RedisAddr)

	snapshotQ := persistence.NewSnapshotQueue(256, metrics)
	decisionQ := persistence.NewDecisionQueue(1024, cfg.RecordQueueHighWater, cfg.RecordQueueBlockDeadline, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())

	drainCfg := persistence.DefaultDrainConfig()
	drainCfg.DecisionWriteRatePerSec = cfg.DecisionWriteRatePerSec
	drainCfg.DecisionWriteBurst = cfg.DecisionWriteBurst
	snapshotDrain := persistence.NewSnapshotDrain(snapshotQ, snapshotRepo, drainCfg, metrics, logger)
	decisionDrain := persistence.NewDecisionDrain(decisionQ, decisionRepo, drainCfg, metrics, logger)
	go snapshotDrain.Run(ctx)
	go decisionDrain.Run(ctx)

	pool := workers.New(workers.SizeCPUBound(cfg.WorkerPoolSize), logger)

	eng := engine.New(cfg, logger, metrics, pool, snapshotRepo, decisionRepo, snapshotQ, decisionQ, bundleCache, globalStats)

	var bayesLoop *bayesopt.Loop
	var tracker *stats.Tracker
	seenUsers := newUserRegistry()

	if cfg.Flags.BayesOptEnabled {
		store, err := bayesopt.OpenStore(cfg.BayesOptDBPath)
		if err != nil {
			log.Fatal("bayesopt store open failed: ", err)
		}
		defer store.Close()

		// Bounds over the five reward-weight components the engine composes
		// reward with (§4.I, §4.L "low-dimensional hyperparameter vector").
		bounds := []bayesopt.Bound{
			{Lo: 0, Hi: 1}, // Correctness
			{Lo: 0, Hi: 1}, // Speed
			{Lo: 0, Hi: 1}, // Fatigue
			{Lo: 0, Hi: 1}, // Frustration
			{Lo: 0, Hi: 1}, // Engagement
		}
		optimizer := bayesopt.NewOptimizer(bounds, 2.0, rand.Int63())

		currentParams := func() []float64 {
			w := action.WeightsForProfile(string(cfg.RewardProfile))
			return []float64{w.Correctness, w.Speed, w.Fatigue, w.Frustration, w.Engagement}
		}
		tracker = stats.NewTracker(stats.NoopAnalyser{}, optimizer, currentParams)

		bayesLoop = bayesopt.NewLoop(optimizer, store, weeklyEvaluator{tracker: tracker, users: seenUsers.all}, 24*time.Hour, logger)
		if err := bayesLoop.Start(); err != nil {
			log.Fatal("bayesopt loop start failed: ", err)
		}
	}

	rewardWeights := action.WeightsForProfile(string(cfg.RewardProfile))

	// The manager is built with a nil FlagSource, so its periodic reloads
	// are no-ops and it always serves cfg.Flags.BayesOptEnabled; the
	// watcher below therefore never stops a running bayesopt loop.
	flagMgr := config.NewFlagManager(nil, "amas-engine")
	flagMgr.StartHotReload(30 * time.Second)
	if bayesLoop != nil {
		go watchBayesOptFlag(ctx, flagMgr, cfg.Flags.BayesOptEnabled, bayesLoop, logger)
	}

	logger.Info("amas engine ready, reading events from stdin")
	go runIngestLoop(ctx, eng, tracker, seenUsers, rewardWeights)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if bayesLoop != nil {
		bayesLoop.Stop()
	}
	cancel()
}

// watchBayesOptFlag polls the flag manager and stops the bayesopt loop the
// first time the flag flips off. It never restarts a stopped loop, matching
// Loop's own one-shot Stop semantics.
func watchBayesOptFlag(ctx context.Context, mgr *config.FlagManager, defaultValue bool, loop *bayesopt.Loop, logger *telemetry.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !mgr.Enabled("bayesopt", defaultValue) {
				logger.Info("bayesopt disabled via flag, stopping loop")
				loop.Stop()
				return
			}
		}
	}
}

// userRegistry tracks every userID seen this process's lifetime so the
// bayesopt weekly evaluator can walk the stats tracker's per-user buckets
// without the tracker exposing its internal map.
type userRegistry struct {
	ids  []string
	seen map[string]bool
}

func newUserRegistry() *userRegistry {
	return &userRegistry{seen: make(map[string]bool)}
}

func (r *userRegistry) observe(userID string) {
	if r.seen[userID] {
		return
	}
	r.seen[userID] = true
	r.ids = append(r.ids, userID)
}

func (r *userRegistry) all() []string { return r.ids }

// runIngestLoop reads one RawEvent per line of NDJSON from stdin, feeds it
// through the engine, and writes the resulting action to stdout. A
// malformed line is logged and skipped rather than terminating the feed.
func runIngestLoop(ctx context.Context, eng *engine.Engine, tracker *stats.Tracker, users *userRegistry, rewardWeights action.RewardWeights) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in ingestEvent
		if err := json.Unmarshal(line, &in); err != nil {
			log.Printf("amas: skipping malformed event: %v", err)
			continue
		}
		users.observe(in.UserID)

		chosen, state, summary, err := eng.ProcessEvent(ctx, in.UserID, in.SessionID, in.RawEvent, time.Time{})
		if err != nil {
			log.Printf("amas: process event failed for user %s: %v", in.UserID, err)
			continue
		}

		if tracker != nil {
			if reward, ok := engine.ComputeReward(state, in.RawEvent, rewardWeights); ok {
				tracker.Observe(stats.Sample{
					UserID:       in.UserID,
					Timestamp:    time.Now(),
					Reward:       reward,
					Attention:    state.A,
					Fatigue:      state.F,
					Motivation:   state.M,
					CognitionMem: state.C.Mem,
				})
			}
		}

		out, _ := json.Marshal(map[string]interface{}{
			"userId": in.UserID,
			"action": chosen,
			"phase":  summary.Phase,
			"source": summary.DecisionSource,
			"reason": summary.TopReason,
		})
		os.Stdout.Write(out)
		os.Stdout.Write([]byte("\n"))
	}
}
