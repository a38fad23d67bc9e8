package learning

import (
	"math"

	"amas/internal/action"
	"amas/internal/amaserr"
	"amas/internal/linalg"
	"amas/internal/modeling"
	"amas/internal/telemetry"
)

// LinUCB is the 22-dimensional linear upper-confidence-bound contextual
// bandit (§4.E "LinUCB (22-d)").
type LinUCB struct {
	d      int
	lambda float64
	a      *linalg.Matrix // covariance
	b      []float64      // reward vector
	l      *linalg.Matrix // lower Cholesky factor, L L^T = A

	updateCount     int
	interactionCnt  int
	recentAccuracy  float64
	recentFatigue   float64

	log *telemetry.Logger
}

// NewLinUCB constructs a LinUCB learner with A = lambda*I, b = 0.
func NewLinUCB(d int, lambda float64, log *telemetry.Logger) *LinUCB {
	a := linalg.IdentityMatrix(d, lambda)
	l, err := linalg.Cholesky(a, lambda)
	if err != nil {
		// lambda*I is always PD; a failure here means lambda itself is
		// pathological, so fall back to the identity factor.
		l = linalg.IdentityMatrix(d, math.Sqrt(lambda))
	}
	return &LinUCB{
		d:              d,
		lambda:         lambda,
		a:              a,
		b:              make([]float64, d),
		l:              l,
		recentAccuracy: 0.5,
		log:            log,
	}
}

func (m *LinUCB) Name() string { return "linucb" }

// alpha implements the cold-start-aware exploration schedule (§4.E "alpha
// schedule").
func (m *LinUCB) alpha() float64 {
	switch {
	case m.interactionCnt < 15:
		return 0.5
	case m.interactionCnt < 50:
		if m.recentAccuracy > 0.75 && m.recentFatigue < 0.5 {
			return 2.0
		}
		return 1.0
	default:
		return 0.7
	}
}

// Select scores every candidate action via theta^T x + alpha*confidenceWidth(x),
// theta = A^-1 b computed through the Cholesky factor (§4.E "select").
func (m *LinUCB) Select(state modeling.UserState, actions []action.Action, ctx Context) []Vote {
	theta := linalg.SolveCholesky(m.l, m.b)
	al := m.alpha()

	votes := make([]Vote, len(actions))
	for i, act := range actions {
		x, dirty := linalg.SanitiseVector(BuildFeatureVector(state, act, ctx))
		if dirty && m.log != nil {
			m.log.Warn("linucb feature vector sanitised", "actionIndex", act.Index)
		}
		exploit := dot(theta, x)
		explore := al * linalg.ConfidenceWidth(m.l, x)
		votes[i] = Vote{ActionIndex: act.Index, Score: exploit + explore, Confidence: clampConfidence(explore)}
	}
	return votes
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

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Update folds one observed (state, action, reward) into A, b and the
// Cholesky factor, attempting a rank-1 update before falling back to a
// full re-decomposition (§4.E "update").
func (m *LinUCB) Update(state modeling.UserState, chosen action.Action, reward float64, ctx Context) {
	if !linalg.Finite(reward) {
		return
	}
	reward = clamp(reward, -1, 1)

	x, dirty := linalg.SanitiseVector(BuildFeatureVector(state, chosen, ctx))
	if dirty && m.log != nil {
		m.log.Warn("linucb update feature vector sanitised", "actionIndex", chosen.Index)
	}

	for i := 0; i < m.d; i++ {
		m.b[i] += reward * x[i]
	}
	for i := 0; i < m.d; i++ {
		for j := 0; j < m.d; j++ {
			m.a.Set(i, j, m.a.At(i, j)+x[i]*x[j])
		}
	}

	minDiag := math.Max(m.lambda*1e-2, 1e-6)
	if updated, err := linalg.RankOneUpdate(m.l, x, minDiag); err == nil {
		m.l = updated
	} else {
		if m.log != nil {
			m.log.Warn("linucb rank-1 update failed, falling back to full decomposition", "error", err.Error())
		}
		l, derr := linalg.Cholesky(m.a, m.lambda)
		if derr != nil {
			if m.log != nil {
				m.log.Error("linucb full re-decomposition failed", derr, "kind", amaserr.NumericInstability.String())
			}
			return
		}
		m.l = l
	}

	m.updateCount++
	m.interactionCnt++
	isCorrect := reward >= 0.5
	if isCorrect {
		m.recentAccuracy = 0.9*m.recentAccuracy + 0.1*1.0
	} else {
		m.recentAccuracy = 0.9*m.recentAccuracy + 0.1*0.0
	}
	m.recentFatigue = 0.9*m.recentFatigue + 0.1*state.F
}

// UpdateCount reports how many successful updates have been applied.
func (m *LinUCB) UpdateCount() int { return m.updateCount }

// LinUCBSnapshot is the restorable state of a LinUCB learner.
type LinUCBSnapshot struct {
	D              int
	Lambda         float64
	A              []float64
	B              []float64
	UpdateCount    int
	InteractionCnt int
	RecentAccuracy float64
	RecentFatigue  float64
}

func (m *LinUCB) Snapshot() LinUCBSnapshot {
	aCopy := make([]float64, len(m.a.Data))
	copy(aCopy, m.a.Data)
	bCopy := make([]float64, len(m.b))
	copy(bCopy, m.b)
	return LinUCBSnapshot{
		D: m.d, Lambda: m.lambda, A: aCopy, B: bCopy,
		UpdateCount: m.updateCount, InteractionCnt: m.interactionCnt,
		RecentAccuracy: m.recentAccuracy, RecentFatigue: m.recentFatigue,
	}
}

// Restore applies a snapshot, performing dimension migration when the
// snapshot's d differs from the learner's configured d: a smaller d is
// embedded in the upper-left block and re-decomposed; a larger d causes a
// reset with a logged warning (§4.E "State migration").
func (m *LinUCB) Restore(s LinUCBSnapshot) {
	if s.D == m.d {
		m.a = &linalg.Matrix{D: m.d, Data: append([]float64(nil), s.A...)}
		m.b = append([]float64(nil), s.B...)
	} else if s.D < m.d {
		if m.log != nil {
			m.log.Warn("linucb snapshot dimension smaller than configured, embedding in upper-left block", "snapshotD", s.D, "configuredD", m.d)
		}
		m.a = linalg.IdentityMatrix(m.d, m.lambda)
		for i := 0; i < s.D; i++ {
			for j := 0; j < s.D; j++ {
				m.a.Set(i, j, s.A[i*s.D+j])
			}
		}
		m.b = make([]float64, m.d)
		copy(m.b, s.B)
	} else {
		if m.log != nil {
			m.log.Warn("linucb snapshot dimension larger than configured, resetting", "snapshotD", s.D, "configuredD", m.d)
		}
		m.a = linalg.IdentityMatrix(m.d, m.lambda)
		m.b = make([]float64, m.d)
	}

	l, err := linalg.Cholesky(m.a, m.lambda)
	if err != nil {
		l = linalg.IdentityMatrix(m.d, math.Sqrt(m.lambda))
	}
	m.l = l

	m.updateCount = s.UpdateCount
	m.interactionCnt = s.InteractionCnt
	m.recentAccuracy = s.RecentAccuracy
	m.recentFatigue = s.RecentFatigue
}
