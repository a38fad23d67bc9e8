// Package guardrails applies deterministic, post-selection safety
// overrides to whatever the ensemble picked, smooths the result against
// the user's previous action, and projects back onto the legal action
// catalogue (§4.H).
package guardrails

import (
	"math"

	"amas/internal/action"
	"amas/internal/modeling"
)

// Smoothed is the continuous strategy guardrails operate on before the
// final nearest-neighbour projection back to a concrete Action.
type Smoothed struct {
	IntervalScale float64
	NewRatio      float64
	Difficulty    float64 // numeric, see action.Difficulty.Numeric
	BatchSize     float64
	HintLevel     float64
}

func toSmoothed(a action.Action) Smoothed {
	return Smoothed{
		IntervalScale: a.IntervalScale,
		NewRatio:      a.NewRatio,
		Difficulty:    a.Difficulty.Numeric(),
		BatchSize:     float64(a.BatchSize),
		HintLevel:     float64(a.HintLevel),
	}
}

// ApplySafetyOverrides clamps the candidate action toward a safe envelope
// given the current state, using strict comparisons exactly as documented
// (§4.H, thresholds in action.HighFatigue etc.). Every applicable clause
// fires independently and all converge on the most restrictive bound —
// critical fatigue's clauses apply in addition to high fatigue's, not
// instead of them.
func ApplySafetyOverrides(state modeling.UserState, candidate action.Action) Smoothed {
	s := toSmoothed(candidate)

	if state.F > action.HighFatigue {
		s.IntervalScale = math.Max(s.IntervalScale, 1.0)
		s.NewRatio = math.Min(s.NewRatio, 0.2)
		s.BatchSize = math.Min(s.BatchSize, 8)
	}
	if state.F > action.CriticalFatigue {
		s.Difficulty = math.Min(s.Difficulty, action.Easy.Numeric())
		s.HintLevel = math.Max(s.HintLevel, 1)
		s.NewRatio = math.Min(s.NewRatio, 0.1)
		s.BatchSize = math.Min(s.BatchSize, 5)
	}

	if state.M < action.LowMotivation {
		s.Difficulty = math.Min(s.Difficulty, action.Easy.Numeric())
		s.HintLevel = math.Max(s.HintLevel, 1)
		s.NewRatio = math.Min(s.NewRatio, 0.2)
	}
	if state.M < action.CriticalMotivation {
		s.HintLevel = math.Max(s.HintLevel, 2)
		s.NewRatio = math.Min(s.NewRatio, 0.1)
		s.BatchSize = math.Min(s.BatchSize, 5)
	}

	if state.A < action.MinAttention {
		s.NewRatio = math.Min(s.NewRatio, 0.15)
		s.BatchSize = math.Min(s.BatchSize, 6)
		s.HintLevel = math.Max(s.HintLevel, 1)
	}

	switch state.T {
	case modeling.TrendDown:
		s.NewRatio = math.Min(s.NewRatio, 0.1)
		s.Difficulty = math.Min(s.Difficulty, action.Easy.Numeric())
		s.IntervalScale = math.Min(s.IntervalScale, 0.7)
	case modeling.TrendStuck:
		s.NewRatio = math.Min(s.NewRatio, 0.15)
	}

	return s
}

// Smooth applies an exponential moving average between the previous
// emitted strategy and the new override result, with default time
// constant tau=0.5 (§4.H, action.DefaultSmoothingTau).
func Smooth(prev, next Smoothed, tau float64) Smoothed {
	if tau <= 0 || tau > 1 {
		tau = action.DefaultSmoothingTau
	}
	return Smoothed{
		IntervalScale: tau*next.IntervalScale + (1-tau)*prev.IntervalScale,
		NewRatio:      tau*next.NewRatio + (1-tau)*prev.NewRatio,
		Difficulty:    tau*next.Difficulty + (1-tau)*prev.Difficulty,
		BatchSize:     tau*next.BatchSize + (1-tau)*prev.BatchSize,
		HintLevel:     tau*next.HintLevel + (1-tau)*prev.HintLevel,
	}
}

// MapStrategyToAction projects a smoothed, continuous strategy onto the
// nearest legal entry in the action catalogue (§4.H "nearest-neighbour
// projection").
func MapStrategyToAction(s Smoothed, catalogue []action.Action) action.Action {
	best := catalogue[0]
	bestDist := math.Inf(1)
	for _, a := range catalogue {
		d := squaredDistance(s, a)
		if d < bestDist {
			bestDist = d
			best = a
		}
	}
	return best
}

func squaredDistance(s Smoothed, a action.Action) float64 {
	dIv := s.IntervalScale - a.IntervalScale
	dNr := s.NewRatio - a.NewRatio
	dDiff := s.Difficulty - a.Difficulty.Numeric()
	dBatch := (s.BatchSize - float64(a.BatchSize)) / 20.0
	dHint := (s.HintLevel - float64(a.HintLevel)) / 3.0
	return dIv*dIv + dNr*dNr + dDiff*dDiff + dBatch*dBatch + dHint*dHint
}

// Apply runs the full guardrail pipeline: safety overrides, EMA smoothing
// against the previous strategy, then projection to the nearest legal
// action (§4.H, event flow step 6).
func Apply(state modeling.UserState, candidate action.Action, prev *Smoothed, tau float64, catalogue []action.Action) (action.Action, Smoothed) {
	overridden := ApplySafetyOverrides(state, candidate)
	var smoothed Smoothed
	if prev == nil {
		smoothed = overridden
	} else {
		smoothed = Smooth(*prev, overridden, tau)
	}
	return MapStrategyToAction(smoothed, catalogue), smoothed
}
