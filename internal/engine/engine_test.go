package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"amas/internal/config"
	"amas/internal/perception"
	"amas/internal/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		FeatureDimension:  22,
		LinUCBAlpha:       1.0,
		LinUCBLambda:      1.0,
		RewardProfile:     config.RewardStandard,
		SnapshotEveryN:    1000, // avoid triggering snapshot queue writes (no queue wired in this test)
		EnsembleMinWeight: 0.05,
		Flags: config.FeatureFlags{
			ThompsonEnabled:  true,
			LinUCBEnabled:    true,
			ACTREnabled:      true,
			HeuristicEnabled: true,
			WorkerOffload:    false,
		},
	}
}

func newTestEngine() *Engine {
	log := telemetry.New("engine-test", nil)
	return New(testConfig(), log, telemetry.NewMetrics(), nil, nil, nil, nil, nil, nil, nil)
}

func sampleEvent(ts int64, correct bool) perception.RawEvent {
	return perception.RawEvent{
		WordID:             "w1",
		IsCorrect:          correct,
		ResponseTimeMs:     2000,
		DwellTimeMs:        3000,
		TimestampUnixMs:    ts,
		PauseCount:         1,
		SwitchCount:        0,
		RetryCount:         0,
		FocusLossDurationMs: 0,
		InteractionDensity: 0.5,
	}
}

func TestProcessEventReturnsLegalActionAndAdvancesState(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	a, state, summary, err := e.ProcessEvent(ctx, "user1", "sess1", sampleEvent(1000, true), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Legal() {
		t.Fatalf("expected legal action, got %+v", a)
	}
	if state.Confidence <= 0 {
		t.Fatalf("expected positive confidence after first event")
	}
	if summary.DecisionSource == "" {
		t.Fatalf("expected a non-empty decision source")
	}
}

func TestGetStrategyReturnsLastProcessedAction(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	a, _, _, err := e.ProcessEvent(ctx, "user2", "sess1", sampleEvent(1000, true), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _, err := e.GetStrategy("user2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != a {
		t.Fatalf("GetStrategy returned %+v, want %+v", got, a)
	}
}

func TestGetStrategyErrorsForUnknownUser(t *testing.T) {
	e := newTestEngine()
	if _, _, err := e.GetStrategy("never-seen"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestSnapshotRestoreRoundTripPreservesLastAction(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	a, _, _, err := e.ProcessEvent(ctx, "user3", "sess1", sampleEvent(1000, true), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := e.Snapshot("user3")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	e2 := newTestEngine()
	if err := e2.Restore("user3", payload); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	a2, _, _, err := e2.ProcessEvent(ctx, "user3", "sess1", sampleEvent(2000, true), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error after restore: %v", err)
	}
	if !a2.Legal() {
		t.Fatalf("expected legal action after restore, got %+v", a2)
	}
	_ = a
}

func TestRestoreRejectsNewerSnapshotVersion(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	if _, _, _, err := e.ProcessEvent(ctx, "user4", "sess1", sampleEvent(1000, true), time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := e.Snapshot("user4")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	// Corrupt the version field to simulate a snapshot from a newer build.
	corrupted := []byte(`{"Version":999}`)
	if err := e.Restore("user4", corrupted); err == nil {
		t.Fatalf("expected restore to reject a newer snapshot version")
	}
	_ = payload
}

func TestProcessEventRejectsAlreadyPassedDeadline(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	if _, _, _, err := e.ProcessEvent(ctx, "user5", "sess1", sampleEvent(1000, true), past); err == nil {
		t.Fatalf("expected timeout error for an already-passed deadline")
	}
}

// TestConcurrentEventsForOneUserDoNotRace exercises P8 (per-user
// serialisation): many goroutines hammering the same user concurrently
// must never panic or corrupt that user's bundle.
func TestConcurrentEventsForOneUserDoNotRace(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := "concurrent-user"
			for i := 0; i < 20; i++ {
				if _, _, _, err := e.ProcessEvent(ctx, userID, "sess", sampleEvent(int64(1000+i), i%2 == 0), time.Time{}); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(u)
	}
	wg.Wait()
}
