// Package ensemble aggregates the learning layer's per-action votes into
// one decision, adapts learner weights over time, and routes to the
// cold-start manager while a user hasn't settled (§4.G).
package ensemble

import (
	"math"

	"amas/internal/action"
	"amas/internal/coldstart"
	"amas/internal/learning"
	"amas/internal/modeling"
)

// MinWeight is the floor every learner weight is clipped to, so no
// learner is ever fully starved out of the vote (§4.G).
const MinWeight = 0.05

// LearnerName identifies one of the four fixed ensemble members.
type LearnerName string

const (
	NameThompson  LearnerName = "thompson"
	NameLinUCB    LearnerName = "linucb"
	NameACTR      LearnerName = "actr"
	NameHeuristic LearnerName = "heuristic"
)

var allNames = []LearnerName{NameThompson, NameLinUCB, NameACTR, NameHeuristic}

// Weights holds the normalised per-learner contribution weights (§3
// "EnsembleState").
type Weights map[LearnerName]float64

func defaultWeights() Weights {
	return Weights{NameThompson: 0.25, NameLinUCB: 0.25, NameACTR: 0.25, NameHeuristic: 0.25}
}

// MemberVote is one learner's contribution to a decision, recorded for
// the pipeline trace (§4.G "record per-member").
type MemberVote struct {
	Learner      LearnerName
	ActionIndex  int
	Score        float64
	Confidence   float64
	Contribution float64
}

// Decision is the ensemble's arg-max output plus the per-member detail
// the trace needs.
type Decision struct {
	Action      action.Action
	Source      string // "coldstart", "ensemble", or "fallback"
	Confidence  float64
	MemberVotes []MemberVote
}

// Member pairs a name with its Learner implementation so the ensemble can
// report per-learner confidence/weight without type-switching.
type Member struct {
	Name    LearnerName
	Learner learning.Learner
	Enabled bool
}

// recentRewardTracker is the per-learner EMA weight adaptation uses
// (§4.G "each learner's recentReward EMA").
type recentRewardTracker map[LearnerName]float64

const recentRewardEMAFactor = 0.9

// the weight-adaptation step is a softmax-like update at this
// temperature, bounding how much a single reward observation can move the
// normalised weights (§9 open question (i): implementers should choose a
// conservative rate; this keeps P1 — weight normalisation — intact under
// adversarial rewards since each step is bounded and renormalised).
const weightAdaptTemperature = 4.0

// State is one user's ensemble state (§3 "EnsembleState").
type State struct {
	Weights       Weights
	UpdateCount   int
	ColdStart     *coldstart.State
	recentRewards recentRewardTracker
}

// NewState creates ensemble state with uniform weights and a fresh
// cold-start manager.
func NewState(priors map[coldstart.UserType]float64) *State {
	return &State{
		Weights:       defaultWeights(),
		ColdStart:     coldstart.New(priors),
		recentRewards: recentRewardTracker{NameThompson: 0.5, NameLinUCB: 0.5, NameACTR: 0.5, NameHeuristic: 0.5},
	}
}

// Select implements §4.G "Select": while the cold-start manager isn't in
// normal phase, delegate to it; otherwise aggregate weighted, confidence
// -scaled votes from every enabled member and arg-max, ties broken by
// first occurrence.
func (s *State) Select(members []Member, state modeling.UserState, actions []action.Action, ctx learning.Context) Decision {
	if s.ColdStart.Phase != coldstart.PhaseNormal {
		a := s.ColdStart.NearestAction(actions)
		return Decision{Action: a, Source: "coldstart", Confidence: 0.5}
	}

	aggregate := make([]float64, len(actions))
	memberVotes := make([]MemberVote, 0, len(members))

	for _, mem := range members {
		if !mem.Enabled {
			continue
		}
		w := s.Weights[mem.Name]
		votes := mem.Learner.Select(state, actions, ctx)
		for i, v := range votes {
			contribution := w * v.Confidence * v.Score
			aggregate[i] += contribution
			memberVotes = append(memberVotes, MemberVote{
				Learner:      mem.Name,
				ActionIndex:  v.ActionIndex,
				Score:        v.Score,
				Confidence:   v.Confidence,
				Contribution: contribution,
			})
		}
	}

	bestIdx := 0
	bestScore := math.Inf(-1)
	for i, v := range aggregate {
		if v > bestScore {
			bestScore = v
			bestIdx = i
		}
	}

	return Decision{
		Action:      actions[bestIdx],
		Source:      "ensemble",
		Confidence:  clampConfidence(bestScore),
		MemberVotes: memberVotes,
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Update propagates (state, action, reward, ctx) to every enabled member,
// then adapts weights by each learner's recentReward EMA through a
// bounded softmax-like step, clips to [MinWeight, 1], and renormalises
// (§4.G "Update").
func (s *State) Update(members []Member, state modeling.UserState, chosen action.Action, reward float64, ctx learning.Context) {
	for _, mem := range members {
		if !mem.Enabled {
			continue
		}
		mem.Learner.Update(state, chosen, reward, ctx)
	}

	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		s.ColdStart.AdvanceUpdateCount()
		s.UpdateCount++
		return
	}
	normalizedReward := (reward + 1) / 2 // map [-1,1] -> [0,1] for the EMA

	for _, mem := range members {
		if !mem.Enabled {
			continue
		}
		prev := s.recentRewards[mem.Name]
		s.recentRewards[mem.Name] = recentRewardEMAFactor*prev + (1-recentRewardEMAFactor)*normalizedReward
	}

	s.adaptWeights()
	s.UpdateCount++
	s.ColdStart.AdvanceUpdateCount()
}

// adaptWeights applies a softmax over recentRewards at a fixed
// temperature, then moves the current weights a small step (0.1) toward
// that softmax so a single observation can't swing the distribution, and finally clips
// and renormalises (§4.G, §9 open question (i)).
func (s *State) adaptWeights() {
	var expSum float64
	exps := make(map[LearnerName]float64, len(allNames))
	for _, name := range allNames {
		e := math.Exp(s.recentRewards[name] * weightAdaptTemperature)
		exps[name] = e
		expSum += e
	}
	const blend = 0.1 // bounded step size
	next := make(Weights, len(allNames))
	var total float64
	for _, name := range allNames {
		softmaxTarget := exps[name] / expSum
		w := (1-blend)*s.Weights[name] + blend*softmaxTarget
		if w < MinWeight {
			w = MinWeight
		}
		next[name] = w
		total += w
	}
	if total <= 0 {
		s.Weights = defaultWeights()
		return
	}
	for name := range next {
		next[name] /= total
	}
	s.Weights = next
}

// Restoration tolerates missing weights (defaults), an invalid sum
// (renormalise, or fall back to uniform if sum <= 0), and clips every
// weight into range (§4.G "Restoration").
func (s *State) RestoreWeights(w Weights) {
	if w == nil {
		s.Weights = defaultWeights()
		return
	}
	fixed := make(Weights, len(allNames))
	var total float64
	for _, name := range allNames {
		v, ok := w[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			v = defaultWeights()[name]
		}
		if v < MinWeight {
			v = MinWeight
		}
		if v > 1 {
			v = 1
		}
		fixed[name] = v
		total += v
	}
	if total <= 0 {
		s.Weights = defaultWeights()
		return
	}
	for name := range fixed {
		fixed[name] /= total
	}
	s.Weights = fixed
}
