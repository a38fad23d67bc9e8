package learning

import (
	"amas/internal/action"
	"amas/internal/modeling"
)

// Heuristic is the table-lookup fallback learner: coarsened (A, F, M)
// buckets map to a preferred action profile with no learned state, giving
// the ensemble a stable, known-safe vote even before any bandit has
// accumulated evidence (§4.E "Heuristic baseline").
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Name() string { return "heuristic" }

// bucket maps a value in [lo,hi] to {0,1,2} (low/mid/high).
func bucket(v, lo, hi float64) int {
	span := hi - lo
	if span <= 0 {
		return 1
	}
	frac := (v - lo) / span
	switch {
	case frac < 1.0/3:
		return 0
	case frac < 2.0/3:
		return 1
	default:
		return 2
	}
}

// preferredDifficulty returns the table's preferred difficulty for
// coarsened (attention, fatigue, motivation) buckets.
func preferredDifficulty(aBucket, fBucket, mBucket int) action.Difficulty {
	// High fatigue or low motivation always pulls toward easy, regardless
	// of attention or bucket combination.
	if fBucket == 2 || mBucket == 0 {
		return action.Easy
	}
	if aBucket == 2 && fBucket == 0 && mBucket == 2 {
		return action.Hard
	}
	return action.Mid
}

// Select scores each candidate action by how closely its difficulty
// matches the table's preference for the current bucketed state, and its
// hint level by the inverse of attention.
func (h *Heuristic) Select(state modeling.UserState, actions []action.Action, ctx Context) []Vote {
	aB := bucket(state.A, 0, 1)
	fB := bucket(state.F, 0, 1)
	mB := bucket(state.M, -1, 1)
	preferred := preferredDifficulty(aB, fB, mB)

	wantHint := 0
	if aB == 0 {
		wantHint = 2
	} else if aB == 1 {
		wantHint = 1
	}

	votes := make([]Vote, len(actions))
	for i, act := range actions {
		score := 0.0
		if act.Difficulty == preferred {
			score += 0.7
		}
		hintDist := absInt(act.HintLevel - wantHint)
		score += 0.3 * (1 - float64(hintDist)/2.0)
		votes[i] = Vote{ActionIndex: act.Index, Score: score, Confidence: 0.5}
	}
	return votes
}

// Update is a no-op: the heuristic has no learned state (§4.E).
func (h *Heuristic) Update(state modeling.UserState, chosen action.Action, reward float64, ctx Context) {
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
