// Package coldstart Bayes-classifies a fresh user into {fast, stable,
// cautious} from three fixed probe actions, then hands off to a settled
// per-type strategy while the full ensemble keeps learning in the
// background (§4.F).
package coldstart

import (
	"math"

	"amas/internal/action"
)

// UserType is the outcome of cold-start classification.
type UserType string

const (
	TypeFast     UserType = "fast"
	TypeStable   UserType = "stable"
	TypeCautious UserType = "cautious"
	TypeNone     UserType = ""
)

// Phase is the cold-start state machine's current stage (§4.F "Phase
// machine").
type Phase string

const (
	PhaseClassify Phase = "classify"
	PhaseExplore  Phase = "explore"
	PhaseNormal   Phase = "normal"
)

// ProbeActions are the 3 fixed, ordered probes every user is shown during
// classify (§4.F).
var ProbeActions = []action.Action{
	{Index: -1, IntervalScale: 1.0, NewRatio: 0.25, Difficulty: action.Mid, BatchSize: 8, HintLevel: 0},
	{Index: -2, IntervalScale: 1.2, NewRatio: 0.35, Difficulty: action.Hard, BatchSize: 10, HintLevel: 0},
	{Index: -3, IntervalScale: 0.7, NewRatio: 0.15, Difficulty: action.Easy, BatchSize: 6, HintLevel: 2},
}

// SettledStrategies are the per-user-type action presets cold-start hands
// off to on entering explore/normal (§4.F, Glossary "Settled strategy").
var SettledStrategies = map[UserType]action.Action{
	TypeFast:     {Index: -10, IntervalScale: 1.2, NewRatio: 0.35, Difficulty: action.Hard, BatchSize: 12, HintLevel: 0},
	TypeStable:   {Index: -11, IntervalScale: 1.0, NewRatio: 0.25, Difficulty: action.Mid, BatchSize: 10, HintLevel: 0},
	TypeCautious: {Index: -12, IntervalScale: 0.7, NewRatio: 0.15, Difficulty: action.Easy, BatchSize: 8, HintLevel: 1},
}

// typeMeans/typeStds give the Gaussian likelihood per (type, probeIndex)
// over the combined-correctness-derived responseTime and errorRate
// signal; values are implementer-chosen but internally consistent with
// the settled-strategy intent (fast users respond quickly and correctly
// on the ceiling probe; cautious users are slower but steadier).
type probeStats struct {
	rtMean, rtStd   float64
	errMean, errStd float64
}

var typeProbeStats = map[UserType][3]probeStats{
	TypeFast: {
		{rtMean: 1200, rtStd: 400, errMean: 0.1, errStd: 0.1},
		{rtMean: 1500, rtStd: 500, errMean: 0.15, errStd: 0.15},
		{rtMean: 900, rtStd: 300, errMean: 0.05, errStd: 0.08},
	},
	TypeStable: {
		{rtMean: 2200, rtStd: 600, errMean: 0.2, errStd: 0.15},
		{rtMean: 3000, rtStd: 800, errMean: 0.3, errStd: 0.2},
		{rtMean: 1800, rtStd: 500, errMean: 0.15, errStd: 0.12},
	},
	TypeCautious: {
		{rtMean: 3800, rtStd: 900, errMean: 0.3, errStd: 0.18},
		{rtMean: 5200, rtStd: 1200, errMean: 0.45, errStd: 0.2},
		{rtMean: 3000, rtStd: 700, errMean: 0.2, errStd: 0.15},
	},
}

// DefaultPriors is the fallback prior mix over {fast, stable, cautious}
// (§4.F "fallback to {0.25, 0.5, 0.25}").
var DefaultPriors = map[UserType]float64{
	TypeFast:     0.25,
	TypeStable:   0.5,
	TypeCautious: 0.25,
}

const (
	earlyStopMinProbes     = 2
	earlyStopThreshold     = 0.85
	normalUpdateCountGate  = 8
)

// Observation is one classify-phase result, keyed by which probe produced
// it (§4.F "each event in classify records").
type Observation struct {
	ProbeIndex     int
	IsCorrect      bool
	ResponseTimeMs float64
	ErrorRate      float64
}

const maxResultHistory = 20

// State is one user's cold-start progress (§3 "ColdStartState").
type State struct {
	Phase            Phase
	UserType         UserType
	ProbeIndex       int
	Results          []Observation
	SettledStrategy  *action.Action
	UpdateCount      int
	CachedPosterior  map[UserType]float64
	Priors           map[UserType]float64
}

// New creates a fresh cold-start state in the classify phase.
func New(priors map[UserType]float64) *State {
	if priors == nil {
		priors = DefaultPriors
	}
	return &State{Phase: PhaseClassify, Priors: priors}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// gaussianLikelihood is the density of a normal with the given mean/std
// at x, floor-stabilised.
func gaussianLikelihood(x, mean, std float64) float64 {
	if std < 1e-6 {
		std = 1e-6
	}
	z := (x - mean) / std
	return math.Exp(-0.5*z*z) / (std * math.Sqrt(2*math.Pi))
}

// combinedCorrectness derives isCorrect's continuous analogue for the
// posterior update (§4.F "Combined correctness signal").
func combinedCorrectness(reward, recentErrorRate float64) bool {
	return 0.6*reward+0.4*(1-recentErrorRate) >= 0.5
}

// posterior computes P(type | observations) via a Gaussian likelihood per
// probe and the configured prior.
func (s *State) posterior() map[UserType]float64 {
	out := make(map[UserType]float64, len(s.Priors))
	total := 0.0
	for userType, prior := range s.Priors {
		stats := typeProbeStats[userType]
		logLik := math.Log(math.Max(prior, 1e-9))
		for _, obs := range s.Results {
			if obs.ProbeIndex < 0 || obs.ProbeIndex >= len(stats) {
				continue
			}
			ps := stats[obs.ProbeIndex]
			rtLik := gaussianLikelihood(obs.ResponseTimeMs, ps.rtMean, ps.rtStd)
			errLik := gaussianLikelihood(obs.ErrorRate, ps.errMean, ps.errStd)
			logLik += math.Log(math.Max(rtLik, 1e-12)) + math.Log(math.Max(errLik, 1e-12))
		}
		p := math.Exp(logLik)
		out[userType] = p
		total += p
	}
	if total <= 0 {
		return s.Priors
	}
	for k := range out {
		out[k] /= total
	}
	return out
}

func argmaxType(p map[UserType]float64) (UserType, float64) {
	var best UserType
	bestV := -1.0
	for k, v := range p {
		if v > bestV {
			best, bestV = k, v
		}
	}
	return best, bestV
}

// RecordProbe ingests one classify-phase observation and advances the
// phase machine (§4.F "Phase machine"). reward/recentErrorRate feed the
// combined-correctness signal; responseTime/errorRate feed the Gaussian
// likelihood directly.
func (s *State) RecordProbe(reward, recentErrorRate, responseTimeMs, errorRate float64) {
	if s.Phase != PhaseClassify {
		return
	}
	obs := Observation{
		ProbeIndex:     s.ProbeIndex,
		IsCorrect:      combinedCorrectness(reward, recentErrorRate),
		ResponseTimeMs: responseTimeMs,
		ErrorRate:      errorRate,
	}
	s.Results = append(s.Results, obs)
	if len(s.Results) > maxResultHistory {
		s.Results = s.Results[len(s.Results)-maxResultHistory:]
	}
	s.ProbeIndex++

	post := s.posterior()
	s.CachedPosterior = post
	bestType, bestP := argmaxType(post)

	if s.ProbeIndex >= earlyStopMinProbes && bestP >= earlyStopThreshold {
		s.classify(bestType)
		return
	}
	if s.ProbeIndex >= len(ProbeActions) {
		s.classify(bestType)
	}
}

func (s *State) classify(userType UserType) {
	s.UserType = userType
	s.ProbeIndex = len(ProbeActions)
	strat := SettledStrategies[userType]
	s.SettledStrategy = &strat
	s.Phase = PhaseExplore
}

// AdvanceUpdateCount increments updateCount and transitions to normal
// once the gate is reached, re-running classification as a safety net if
// no settled strategy was ever produced (§4.F).
func (s *State) AdvanceUpdateCount() {
	s.UpdateCount++
	if s.Phase != PhaseNormal && s.UpdateCount >= normalUpdateCountGate && s.ProbeIndex >= len(ProbeActions) {
		if s.SettledStrategy == nil {
			post := s.posterior()
			s.CachedPosterior = post
			bestType, _ := argmaxType(post)
			s.classify(bestType)
		}
		s.Phase = PhaseNormal
	}
}

// CurrentProbe returns the next fixed probe action while in classify.
func (s *State) CurrentProbe() action.Action {
	idx := s.ProbeIndex
	if idx >= len(ProbeActions) {
		idx = len(ProbeActions) - 1
	}
	return ProbeActions[idx]
}

// NearestAction projects the manager's reference action (current probe or
// settled strategy) to the nearest entry in the given catalogue (§4.F
// "selects the nearest ACTION_SPACE entry").
func (s *State) NearestAction(catalogue []action.Action) action.Action {
	var ref action.Action
	switch s.Phase {
	case PhaseClassify:
		ref = s.CurrentProbe()
	default:
		if s.SettledStrategy != nil {
			ref = *s.SettledStrategy
		} else {
			ref = s.CurrentProbe()
		}
	}
	return nearest(ref, catalogue)
}

func nearest(ref action.Action, catalogue []action.Action) action.Action {
	best := catalogue[0]
	bestDist := math.Inf(1)
	for _, a := range catalogue {
		d := distance(ref, a)
		if d < bestDist {
			bestDist = d
			best = a
		}
	}
	return best
}

func distance(a, b action.Action) float64 {
	dIv := a.IntervalScale - b.IntervalScale
	dNr := a.NewRatio - b.NewRatio
	dDiff := a.Difficulty.Numeric() - b.Difficulty.Numeric()
	dBatch := float64(a.BatchSize-b.BatchSize) / 20.0
	dHint := float64(a.HintLevel-b.HintLevel) / 3.0
	return dIv*dIv + dNr*dNr + dDiff*dDiff + dBatch*dBatch + dHint*dHint
}
