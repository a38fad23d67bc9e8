package engine

import (
	"fmt"

	"amas/internal/action"
	"amas/internal/ensemble"
	"amas/internal/modeling"
)

// ExplanationSummary is the informational-only companion ProcessEvent
// returns alongside Action/UserState (§4.I.1, supplementing spec.md §6's
// underspecified ExplanationSummary). It never influences the emitted
// Action.
type ExplanationSummary struct {
	DecisionSource       string
	Phase                string
	TopReason            string
	MemberContributions  map[string]float64
	GuardrailsApplied    []string
}

// guardrailsFired reports which named safety override clauses fired for
// this state, mirroring guardrails.ApplySafetyOverrides's clauses without
// duplicating its clamping math. Fatigue and motivation each have two
// independent clauses (high/critical) that can both fire at once, the
// same way ApplySafetyOverrides applies both rather than picking one.
func guardrailsFired(state modeling.UserState) []string {
	var fired []string
	if state.F > action.HighFatigue {
		fired = append(fired, "highFatigue")
	}
	if state.F > action.CriticalFatigue {
		fired = append(fired, "criticalFatigue")
	}
	if state.M < action.LowMotivation {
		fired = append(fired, "lowMotivation")
	}
	if state.M < action.CriticalMotivation {
		fired = append(fired, "criticalMotivation")
	}
	if state.A < action.MinAttention {
		fired = append(fired, "lowAttention")
	}
	switch state.T {
	case modeling.TrendDown:
		fired = append(fired, "trendDown")
	case modeling.TrendStuck:
		fired = append(fired, "trendStuck")
	}
	return fired
}

// buildExplanation distills an ensemble.Decision plus the guardrails that
// fired into the summary ProcessEvent returns.
func buildExplanation(decision ensemble.Decision, phase string, state modeling.UserState) ExplanationSummary {
	contributions := make(map[string]float64, len(decision.MemberVotes))
	var topLearner string
	var topContribution float64
	for _, v := range decision.MemberVotes {
		contributions[string(v.Learner)] += v.Contribution
		if contributions[string(v.Learner)] > topContribution {
			topContribution = contributions[string(v.Learner)]
			topLearner = string(v.Learner)
		}
	}

	reason := fmt.Sprintf("source=%s confidence=%.2f", decision.Source, decision.Confidence)
	if topLearner != "" {
		reason = fmt.Sprintf("%s led by %s (contribution=%.3f)", reason, topLearner, topContribution)
	}

	return ExplanationSummary{
		DecisionSource:      decision.Source,
		Phase:               phase,
		TopReason:           reason,
		MemberContributions: contributions,
		GuardrailsApplied:   guardrailsFired(state),
	}
}
