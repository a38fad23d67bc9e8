package learning

import (
	"math"
	"testing"

	"amas/internal/action"
	"amas/internal/modeling"
)

func testActions() []action.Action {
	return action.ACTION_SPACE
}

func TestBuildFeatureVectorHasFixedDimAndBiasTerm(t *testing.T) {
	state := modeling.UserState{A: 0.6, F: 0.3, M: 0.1, C: modeling.Cognition{Mem: 0.5, Speed: 0.4}}
	x := BuildFeatureVector(state, action.ACTION_SPACE[0], Context{RecentErrorRate: 0.2, ResponseTimeMs: 4000, HourOfDay: 14})
	if len(x) != FeatureDim {
		t.Fatalf("want %d dims, got %d", FeatureDim, len(x))
	}
	if x[21] != 1 {
		t.Fatalf("bias term must be 1, got %v", x[21])
	}
}

func TestLinUCBSelectReturnsVotePerAction(t *testing.T) {
	m := NewLinUCB(FeatureDim, 1.0, nil)
	state := modeling.UserState{A: 0.5, F: 0.2, M: 0.0, C: modeling.Cognition{Mem: 0.5, Speed: 0.5}}
	votes := m.Select(state, testActions(), Context{RecentErrorRate: 0.1, ResponseTimeMs: 3000, HourOfDay: 9})
	if len(votes) != len(testActions()) {
		t.Fatalf("want %d votes, got %d", len(testActions()), len(votes))
	}
	for _, v := range votes {
		if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) {
			t.Fatalf("non-finite score: %+v", v)
		}
	}
}

func TestLinUCBUpdateIsNoOpOnNonFiniteReward(t *testing.T) {
	m := NewLinUCB(FeatureDim, 1.0, nil)
	before := m.Snapshot()
	state := modeling.UserState{A: 0.5, F: 0.2, M: 0.0, C: modeling.Cognition{Mem: 0.5, Speed: 0.5}}
	m.Update(state, action.ACTION_SPACE[0], math.NaN(), Context{})
	after := m.Snapshot()
	if after.UpdateCount != before.UpdateCount {
		t.Fatalf("update count must not change on non-finite reward")
	}
}

func TestLinUCBAlphaScheduleColdStart(t *testing.T) {
	m := NewLinUCB(FeatureDim, 1.0, nil)
	if m.alpha() != 0.5 {
		t.Fatalf("fresh learner should use cold-start alpha 0.5, got %v", m.alpha())
	}
}

func TestThompsonSelectMixesGlobalAndContextual(t *testing.T) {
	m := NewThompsonModel(42)
	state := modeling.UserState{}
	votes := m.Select(state, testActions(), Context{RecentErrorRate: 0.1, ResponseTimeMs: 2000, HourOfDay: 10})
	if len(votes) != len(testActions()) {
		t.Fatalf("want %d votes, got %d", len(testActions()), len(votes))
	}
	for _, v := range votes {
		if v.Score < 0 || v.Score > 1 {
			t.Fatalf("thompson score out of [0,1]: %v", v.Score)
		}
	}
}

func TestThompsonUpdateSkipsNonFiniteReward(t *testing.T) {
	m := NewThompsonModel(1)
	before := m.Snapshot()
	m.Update(modeling.UserState{}, action.ACTION_SPACE[0], math.NaN(), Context{})
	after := m.Snapshot()
	if len(after.Global) != len(before.Global) {
		t.Fatalf("non-finite reward must not mutate global posteriors")
	}
}

func TestActivationIncreasesWithShorterIntervalsAndSuccess(t *testing.T) {
	recent := []ReviewEvent{{DeltaTSeconds: 60, Success: true}, {DeltaTSeconds: 120, Success: true}}
	stale := []ReviewEvent{{DeltaTSeconds: 60 * 60 * 24, Success: true}, {DeltaTSeconds: 60 * 60 * 48, Success: true}}
	if Activation(recent) <= Activation(stale) {
		t.Fatalf("recent review trace should have higher activation than stale one")
	}
}

func TestHeuristicPrefersEasyUnderHighFatigue(t *testing.T) {
	h := NewHeuristic()
	state := modeling.UserState{A: 0.5, F: 0.95, M: 0.0}
	votes := h.Select(state, testActions(), Context{})
	best := votes[0]
	for _, v := range votes {
		if v.Score > best.Score {
			best = v
		}
	}
	var bestAction action.Action
	for _, a := range testActions() {
		if a.Index == best.ActionIndex {
			bestAction = a
		}
	}
	if bestAction.Difficulty != action.Easy {
		t.Fatalf("expected easy difficulty to win under high fatigue, got %s", bestAction.Difficulty)
	}
}
