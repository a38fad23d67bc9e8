package stats

import (
	"context"
	"testing"
	"time"

	"amas/internal/bayesopt"
)

func TestWeeklyAggregateComputesMeansAndStdev(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday, ISO week 2026-W10
	week := isoWeekKey(base)

	tr.Observe(Sample{UserID: "u1", Timestamp: base, Reward: 0.4, Attention: 0.5, Fatigue: 0.2, Motivation: 0.1})
	tr.Observe(Sample{UserID: "u1", Timestamp: base.Add(time.Hour), Reward: 0.6, Attention: 0.6, Fatigue: 0.3, Motivation: 0.2, ColdStartCompletedAtEvent: 1})
	tr.Observe(Sample{UserID: "u1", Timestamp: base.Add(2 * time.Hour), Reward: 0.5, Attention: 0.55, Fatigue: 0.25, Motivation: 0.15})

	agg, err := tr.WeeklyAggregate("u1", week)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.SampleCount != 3 {
		t.Fatalf("expected 3 samples, got %d", agg.SampleCount)
	}
	wantMean := (0.4 + 0.6 + 0.5) / 3
	if diff := agg.MeanReward - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mean reward = %v, want %v", agg.MeanReward, wantMean)
	}
	if agg.StdevReward <= 0 {
		t.Fatalf("expected positive stdev, got %v", agg.StdevReward)
	}
	if agg.ColdStartLatencyEvents != 2 {
		t.Fatalf("expected cold start latency 2 events, got %d", agg.ColdStartLatencyEvents)
	}
}

func TestWeeklyAggregateErrorsOnNoSamples(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	if _, err := tr.WeeklyAggregate("nobody", "2026-W10"); err == nil {
		t.Fatalf("expected error for user with no samples")
	}
}

func TestEffectScoreReportsInsufficientDataUnderThreePoints(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	base := time.Now()
	tr.Observe(Sample{UserID: "u1", Timestamp: base, CognitionMem: 0.3})
	tr.Observe(Sample{UserID: "u1", Timestamp: base.Add(24 * time.Hour), CognitionMem: 0.4})

	_, ok, err := tr.EffectScore("u1", 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected insufficient-data flag with only 2 points")
	}
}

func TestEffectScoreIsPositiveForRisingCognitionTrend(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	base := time.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 10; i++ {
		tr.Observe(Sample{
			UserID:       "u1",
			Timestamp:    base.Add(time.Duration(i) * 24 * time.Hour),
			CognitionMem: 0.1 + float64(i)*0.05,
		})
	}

	slope, ok, err := tr.EffectScore("u1", 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected enough data for a fit")
	}
	if slope <= 0 {
		t.Fatalf("expected positive slope for a rising trend, got %v", slope)
	}
}

type fakeRecorder struct {
	calls []bayesopt.Observation
}

func (f *fakeRecorder) RecordEvaluation(obs bayesopt.Observation) {
	f.calls = append(f.calls, obs)
}

func TestMaybeTriggerBayesOptFiresOncePerISOWeek(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(nil, rec, func() []float64 { return []float64{1, 2} })
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	week := isoWeekKey(base)

	tr.Observe(Sample{UserID: "u1", Timestamp: base, Reward: 0.5})
	tr.MaybeTriggerBayesOpt(week)
	tr.MaybeTriggerBayesOpt(week)

	if len(rec.calls) != 1 {
		t.Fatalf("expected exactly one RecordEvaluation call, got %d", len(rec.calls))
	}
}

func TestMaybeTriggerBayesOptNoopsWithNoSamples(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(nil, rec, nil)
	tr.MaybeTriggerBayesOpt("2026-W10")
	if len(rec.calls) != 0 {
		t.Fatalf("expected no RecordEvaluation calls with no samples")
	}
}

func TestNoopAnalyserReturnsEmptyNarrative(t *testing.T) {
	a := NoopAnalyser{}
	narrative, err := a.Analyse(context.Background(), Aggregate{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if narrative != "" {
		t.Fatalf("expected empty narrative from noop analyser, got %q", narrative)
	}
}
