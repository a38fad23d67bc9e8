package learning

import (
	"math"

	"amas/internal/action"
	"amas/internal/modeling"
)

// ReviewEvent is one point in a word's review trace: elapsed time since
// the previous review and whether that review succeeded (§4.E "ACT-R
// memory").
type ReviewEvent struct {
	DeltaTSeconds float64
	Success       bool
}

const (
	actrBaseDecay   = 0.5
	actrDecaySlope  = 0.3 // per-event decay is smoothed toward base by recent success
	actrThreshold   = -0.5 // tau
	actrScale       = 0.3  // s
)

// Activation computes m = ln(sum(dt_i^-d_i)) with per-event decay d_i
// smoothed by recent success (§4.E "ACT-R memory").
func Activation(trace []ReviewEvent) float64 {
	if len(trace) == 0 {
		return math.Inf(-1)
	}
	sum := 0.0
	recentSuccess := 0.5
	for _, e := range trace {
		d := actrBaseDecay - actrDecaySlope*recentSuccess
		if d < 0.05 {
			d = 0.05
		}
		dt := e.DeltaTSeconds
		if dt < 1 {
			dt = 1
		}
		sum += math.Pow(dt, -d)
		if e.Success {
			recentSuccess = 0.8*recentSuccess + 0.2
		} else {
			recentSuccess = 0.8 * recentSuccess
		}
	}
	if sum <= 0 {
		return math.Inf(-1)
	}
	return math.Log(sum)
}

// RecallProbability converts an activation into P = sigmoid((m-tau)/s).
func RecallProbability(activation float64) float64 {
	if math.IsInf(activation, -1) {
		return 0
	}
	return 1 / (1 + math.Exp(-(activation-actrThreshold)/actrScale))
}

// ACTR wraps the recall-probability computation as a Learner: it votes
// higher on lower-difficulty, higher-hint actions when recall probability
// is low, and the reverse when recall is high. It has no bandit state of
// its own beyond the per-user review traces the caller threads in.
type ACTR struct {
	traces map[string][]ReviewEvent // keyed by wordId, bounded per entry
}

func NewACTR() *ACTR {
	return &ACTR{traces: make(map[string][]ReviewEvent)}
}

func (m *ACTR) Name() string { return "actr" }

const actrMaxTraceLen = 20

// Observe appends one review outcome to a word's trace. The engine does
// not call it, so inside the engine the traces hold only what Restore
// loaded, and Select scores from p=0.5 when none were restored.
func (m *ACTR) Observe(wordID string, dt float64, success bool) {
	tr := append(m.traces[wordID], ReviewEvent{DeltaTSeconds: dt, Success: success})
	if len(tr) > actrMaxTraceLen {
		tr = tr[len(tr)-actrMaxTraceLen:]
	}
	m.traces[wordID] = tr
}

// Select scores actions by how well their difficulty/hint profile
// complements the current recall probability: low recall favours easier,
// more-hinted actions; high recall favours harder, less-hinted ones.
func (m *ACTR) Select(state modeling.UserState, actions []action.Action, ctx Context) []Vote {
	p := 0.5
	if len(m.traces) > 0 {
		// Aggregate recall probability across all words currently tracked;
		// the caller is expected to narrow traces to the active word when
		// that distinction matters.
		sum := 0.0
		for _, tr := range m.traces {
			sum += RecallProbability(Activation(tr))
		}
		p = sum / float64(len(m.traces))
	}

	votes := make([]Vote, len(actions))
	for i, act := range actions {
		difficultyFit := 1 - math.Abs(act.Difficulty.Numeric()-(1-p))
		hintFit := 1 - math.Abs(float64(act.HintLevel)/2.0-(1-p))
		score := 0.5*difficultyFit + 0.5*hintFit
		votes[i] = Vote{ActionIndex: act.Index, Score: score, Confidence: clampConfidence(math.Abs(p-0.5) * 2)}
	}
	return votes
}

// Update is a no-op: the chosen action's outcome is not added to any
// review trace.
func (m *ACTR) Update(state modeling.UserState, chosen action.Action, reward float64, ctx Context) {
	// ACT-R has no per-action bandit state; review traces change only
	// through Observe and Restore. Update exists to satisfy the Learner
	// interface.
	_ = state
	_ = chosen
	_ = reward
	_ = ctx
}

// ACTRSnapshot is the restorable state of an ACTR learner.
type ACTRSnapshot struct {
	Traces map[string][]ReviewEvent
}

func (m *ACTR) Snapshot() ACTRSnapshot {
	cp := make(map[string][]ReviewEvent, len(m.traces))
	for k, v := range m.traces {
		cp[k] = append([]ReviewEvent(nil), v...)
	}
	return ACTRSnapshot{Traces: cp}
}

func (m *ACTR) Restore(s ACTRSnapshot) {
	if s.Traces == nil {
		m.traces = make(map[string][]ReviewEvent)
		return
	}
	m.traces = s.Traces
}
