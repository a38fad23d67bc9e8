package workers

import (
	"context"
	"testing"

	"amas/internal/action"
	"amas/internal/learning"
	"amas/internal/modeling"
)

func TestFanOutSelectPreservesOrder(t *testing.T) {
	p := New(4, nil)
	tasks := []SelectTask{
		{Learner: learning.NewHeuristic(), State: modeling.UserState{A: 0.9}, Actions: action.ACTION_SPACE, Ctx: learning.Context{}},
		{Learner: learning.NewHeuristic(), State: modeling.UserState{F: 0.9}, Actions: action.ACTION_SPACE, Ctx: learning.Context{}},
	}
	results, err := p.FanOutSelect(context.Background(), tasks)
	if err != nil {
		t.Fatalf("fan-out failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	for _, r := range results {
		if len(r.Votes) != len(action.ACTION_SPACE) {
			t.Fatalf("want %d votes, got %d", len(action.ACTION_SPACE), len(r.Votes))
		}
	}
}

func TestSizeCPUBoundRespectsConfiguredMax(t *testing.T) {
	if got := SizeCPUBound(1); got != 1 {
		t.Fatalf("configured max of 1 should cap pool size, got %d", got)
	}
}
