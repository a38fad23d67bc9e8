package engine

import (
	"math"

	"amas/internal/action"
	"amas/internal/modeling"
	"amas/internal/perception"
)

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ComputeReward implements the weighted reward function exactly as
// documented (§4.I "Reward function"):
//
//	r = w_c*correctness + w_s*speedTerm - w_f*fatigue - w_fr*frustration + w_e*engagement
//
// with speedTerm/frustration/engagement as specified. A non-finite
// intermediate yields ok=false, signalling the caller to skip the update
// entirely (§8 P5).
func ComputeReward(state modeling.UserState, ev perception.RawEvent, w action.RewardWeights) (reward float64, ok bool) {
	correctness := 0.0
	if ev.IsCorrect {
		correctness = 1.0
	}

	refRT := action.ReferenceResponseTimeMs
	speedTerm := clampF((refRT-ev.ResponseTimeMs)/refRT, -1, 1)

	fatigue := state.F

	frustration := 0.5*clampF(float64(ev.RetryCount)/3.0, 0, 1) + 0.5*math.Max(0, -state.M)

	dwell := ev.DwellTimeMs
	if dwell <= 0 {
		dwell = 1 // floor: ln(0) is undefined, and a zero dwell is itself a degenerate sample
	}
	engagement := clampF(ev.InteractionDensity*(1-math.Abs(math.Log(dwell/3000))), 0, 1)

	r := w.Correctness*correctness + w.Speed*speedTerm - w.Fatigue*fatigue - w.Frustration*frustration + w.Engagement*engagement
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return clampF(r, -1, 1), true
}
