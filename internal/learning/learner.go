// Package learning holds the four bandit/memory learners the ensemble
// votes across: LinUCB, Thompson Sampling, ACT-R recall, and a heuristic
// baseline (§4.E).
package learning

import (
	"amas/internal/action"
	"amas/internal/modeling"
)

// FeatureDim is the frozen LinUCB feature-vector width (§4.E "LinUCB
// (22-d)"). Changing it is a breaking, migration-requiring change.
const FeatureDim = 22

// Context is the side information learners condition on beyond the raw
// feature vector: recent error rate, response time, and time of day.
type Context struct {
	RecentErrorRate float64
	ResponseTimeMs  float64
	HourOfDay       int // 0-23
}

// Vote is one learner's opinion on one candidate action.
type Vote struct {
	ActionIndex int
	Score       float64
	Confidence  float64
}

// Learner is the common surface the ensemble drives every bandit through
// (§4.D "Each sub-model exposes" mirrored for learners in §4.E/4.G).
type Learner interface {
	Name() string
	// Select scores every candidate action given the current state+context.
	Select(state modeling.UserState, actions []action.Action, ctx Context) []Vote
	// Update folds one observed (state, action, reward, ctx) into the learner.
	Update(state modeling.UserState, chosen action.Action, reward float64, ctx Context)
}
