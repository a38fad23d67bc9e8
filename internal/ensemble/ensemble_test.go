package ensemble

import (
	"math"
	"testing"

	"amas/internal/action"
	"amas/internal/learning"
	"amas/internal/modeling"
)

func testMembers() []Member {
	return []Member{
		{Name: NameThompson, Learner: learning.NewThompsonModel(1), Enabled: true},
		{Name: NameLinUCB, Learner: learning.NewLinUCB(learning.FeatureDim, 1.0, nil), Enabled: true},
		{Name: NameACTR, Learner: learning.NewACTR(), Enabled: true},
		{Name: NameHeuristic, Learner: learning.NewHeuristic(), Enabled: true},
	}
}

func weightSum(w Weights) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

func TestWeightsStayNormalisedAndFlooredAfterManyUpdates(t *testing.T) {
	s := NewState(nil)
	s.ColdStart.Phase = "normal" // skip cold-start routing for this test
	members := testMembers()
	state := modeling.UserState{A: 0.5, F: 0.3, M: 0.1, C: modeling.Cognition{Mem: 0.5, Speed: 0.5}}

	rewards := []float64{1, -1, 1, 1, -1, 0.5, -1, 1}
	for i := 0; i < 200; i++ {
		r := rewards[i%len(rewards)]
		s.Update(members, state, action.ACTION_SPACE[0], r, learning.Context{})
	}

	sum := weightSum(s.Weights)
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights must sum to 1, got %v (%+v)", sum, s.Weights)
	}
	for name, w := range s.Weights {
		if w < MinWeight {
			t.Fatalf("weight for %s below floor: %v", name, w)
		}
	}
}

func TestSelectDelegatesToColdStartOutsideNormalPhase(t *testing.T) {
	s := NewState(nil)
	members := testMembers()
	state := modeling.UserState{}
	decision := s.Select(members, state, action.ACTION_SPACE, learning.Context{})
	if decision.Source != "coldstart" {
		t.Fatalf("expected coldstart routing before normal phase, got %s", decision.Source)
	}
}

func TestRestoreWeightsRenormalisesInvalidSum(t *testing.T) {
	s := NewState(nil)
	s.RestoreWeights(Weights{NameThompson: 0, NameLinUCB: math.NaN(), NameACTR: -1, NameHeuristic: 0.2})
	sum := weightSum(s.Weights)
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("restored weights must renormalise to sum 1, got %v", sum)
	}
	for name, w := range s.Weights {
		if w < MinWeight {
			t.Fatalf("restored weight for %s below floor: %v", name, w)
		}
	}
}

func TestRestoreWeightsFallsBackToUniformOnNil(t *testing.T) {
	s := NewState(nil)
	s.RestoreWeights(nil)
	if weightSum(s.Weights) != 1 {
		t.Fatalf("nil restore should fall back to default weights summing to 1")
	}
}
