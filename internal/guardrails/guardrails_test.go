package guardrails

import (
	"testing"

	"amas/internal/action"
	"amas/internal/modeling"
)

func TestCriticalFatigueForcesEasyLowBatchHighHint(t *testing.T) {
	state := modeling.UserState{F: 0.81, A: 0.8, M: 0.5}
	candidate := action.Action{IntervalScale: 1.2, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.Difficulty != action.Easy.Numeric() {
		t.Fatalf("expected easy difficulty under critical fatigue, got %v", s.Difficulty)
	}
	if s.HintLevel < 1 {
		t.Fatalf("expected hint level raised to >=1 under critical fatigue, got %v", s.HintLevel)
	}
	if s.NewRatio > 0.1 {
		t.Fatalf("expected new_ratio capped at 0.1 under critical fatigue, got %v", s.NewRatio)
	}
	if s.BatchSize > 5 {
		t.Fatalf("expected batch_size capped at 5 under critical fatigue, got %v", s.BatchSize)
	}
	if s.IntervalScale < 1.0 {
		t.Fatalf("expected interval_scale floored at 1.0 carried over from the high-fatigue clause, got %v", s.IntervalScale)
	}
}

func TestHighFatigueFloorsIntervalScale(t *testing.T) {
	state := modeling.UserState{F: 0.65, A: 0.8, M: 0.5}
	candidate := action.Action{IntervalScale: 0.5, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.IntervalScale < 1.0 {
		t.Fatalf("expected interval_scale floored at 1.0 under high fatigue, got %v", s.IntervalScale)
	}
	if s.NewRatio > 0.2 {
		t.Fatalf("expected new_ratio capped at 0.2 under high fatigue, got %v", s.NewRatio)
	}
	if s.BatchSize > 8 {
		t.Fatalf("expected batch_size capped at 8 under high fatigue, got %v", s.BatchSize)
	}
	if s.Difficulty != action.Hard.Numeric() {
		t.Fatalf("high fatigue alone must not touch difficulty, got %v", s.Difficulty)
	}
}

func TestCriticalMotivationCapsHintAndNewRatio(t *testing.T) {
	state := modeling.UserState{F: 0.1, A: 0.8, M: -0.6}
	candidate := action.Action{IntervalScale: 1.0, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.HintLevel < 2 {
		t.Fatalf("expected hint level raised to >=2 under critical motivation, got %v", s.HintLevel)
	}
	if s.NewRatio > 0.1 {
		t.Fatalf("expected new_ratio capped at 0.1 under critical motivation, got %v", s.NewRatio)
	}
	if s.BatchSize > 5 {
		t.Fatalf("expected batch_size capped at 5 under critical motivation, got %v", s.BatchSize)
	}
}

func TestLowAttentionCapsNewRatioAndBatch(t *testing.T) {
	state := modeling.UserState{F: 0.1, A: 0.2, M: 0.5}
	candidate := action.Action{IntervalScale: 1.0, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.NewRatio > 0.15 {
		t.Fatalf("expected new_ratio capped at 0.15 under low attention, got %v", s.NewRatio)
	}
	if s.BatchSize > 6 {
		t.Fatalf("expected batch_size capped at 6 under low attention, got %v", s.BatchSize)
	}
	if s.HintLevel < 1 {
		t.Fatalf("expected hint level raised to >=1 under low attention, got %v", s.HintLevel)
	}
}

func TestTrendDownCapsIntervalAndForcesEasy(t *testing.T) {
	state := modeling.UserState{F: 0.1, A: 0.8, M: 0.5, T: modeling.TrendDown}
	candidate := action.Action{IntervalScale: 1.2, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.NewRatio > 0.1 {
		t.Fatalf("expected new_ratio capped at 0.1 under downward trend, got %v", s.NewRatio)
	}
	if s.Difficulty != action.Easy.Numeric() {
		t.Fatalf("expected easy difficulty under downward trend, got %v", s.Difficulty)
	}
	if s.IntervalScale > 0.7 {
		t.Fatalf("expected interval_scale capped at 0.7 under downward trend, got %v", s.IntervalScale)
	}
}

func TestTrendStuckCapsNewRatio(t *testing.T) {
	state := modeling.UserState{F: 0.1, A: 0.8, M: 0.5, T: modeling.TrendStuck}
	candidate := action.Action{IntervalScale: 1.0, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(state, candidate)
	if s.NewRatio > 0.15 {
		t.Fatalf("expected new_ratio capped at 0.15 under stuck trend, got %v", s.NewRatio)
	}
}

func TestBoundaryExactness(t *testing.T) {
	exactly := modeling.UserState{F: action.CriticalFatigue, A: 0.8, M: 0.5}
	candidate := action.Action{IntervalScale: 1.2, NewRatio: 0.45, Difficulty: action.Hard, BatchSize: 15, HintLevel: 0}
	s := ApplySafetyOverrides(exactly, candidate)
	if s.Difficulty == action.Easy.Numeric() {
		t.Fatalf("strict > comparison: fatigue exactly at threshold must not trigger the critical override")
	}
}

func TestMapStrategyToActionReturnsCatalogueMember(t *testing.T) {
	s := Smoothed{IntervalScale: 1.0, NewRatio: 0.2, Difficulty: 0.5, BatchSize: 9, HintLevel: 1}
	got := MapStrategyToAction(s, action.ACTION_SPACE)
	found := false
	for _, a := range action.ACTION_SPACE {
		if a == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("mapped action must belong to the supplied catalogue")
	}
}
