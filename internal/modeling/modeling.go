// Package modeling holds the four online, EMA-driven psychometric
// sub-models (Attention, Fatigue, Motivation, Cognition) plus the trend
// classifier that fuse into a UserState on every event (§4.D).
package modeling

import (
	"math"

	"amas/internal/action"
	"amas/internal/perception"
)

// Trend tags the recent derivative of A, F, M.
type Trend string

const (
	TrendUp    Trend = "up"
	TrendFlat  Trend = "flat"
	TrendDown  Trend = "down"
	TrendStuck Trend = "stuck"
	TrendNone  Trend = ""
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Cognition is {mem, speed}, both in [0,1] (§3 "UserState").
type Cognition struct {
	Mem   float64
	Speed float64
}

// AttentionModel is an EMA-smoothed sigmoid of a signed weighted feature
// sum (§4.D "Attention").
type AttentionModel struct {
	value float64
	ema   float64
	n     int
}

func NewAttentionModel() *AttentionModel {
	return &AttentionModel{value: 0.5, ema: 0.5}
}

const attentionEMAFactor = 0.8

// Update folds one event's window stats into the attention estimate.
// The weighted sum uses coefficients of variation (scale-free) so the
// dot product is meaningful across users without per-user normalisation.
func (m *AttentionModel) Update(fv perception.FeatureVector) float64 {
	w := action.DefaultAttentionWeights
	weighted := w.ResponseTime*fv.ResponseTimeCV +
		w.SwitchRate*fv.SwitchCountCV +
		w.FocusLoss*fv.FocusLossCV -
		w.Dwell*fv.DwellTimeCV
	raw := sigmoid(-weighted)
	m.value = raw
	if m.n == 0 {
		m.ema = raw
	} else {
		m.ema = attentionEMAFactor*m.ema + (1-attentionEMAFactor)*raw
	}
	m.n++
	return m.ema
}

func (m *AttentionModel) Value() float64 { return clamp(m.ema, 0, 1) }

type AttentionSnapshot struct {
	Value float64
	EMA   float64
	N     int
}

func (m *AttentionModel) Snapshot() AttentionSnapshot {
	return AttentionSnapshot{Value: m.value, EMA: m.ema, N: m.n}
}

func (m *AttentionModel) Restore(s AttentionSnapshot) {
	m.value, m.ema, m.n = s.Value, s.EMA, s.N
}

// FatigueModel tracks F in [0,1] via a load/rest/long-break balance
// (§4.D "Fatigue").
type FatigueModel struct {
	value          float64
	lastEventMs    int64
	consecutiveCnt int
}

func NewFatigueModel() *FatigueModel { return &FatigueModel{} }

const (
	fatigueBeta           = 0.08 // load coefficient
	fatigueGamma          = 0.05 // rest (short pause) coefficient
	fatigueDelta          = 0.20 // long-break coefficient
	fatigueLongBreakMs    = 10 * 60 * 1000.0
	fatigueRestPauseMs    = 15 * 1000.0
)

// Update applies one event's density/pause signal to fatigue (§4.D).
func (m *FatigueModel) Update(fv perception.FeatureVector, nowUnixMs int64) float64 {
	load := clamp(fv.InteractionDensity, 0, 1)

	rest := 0.0
	if fv.FocusLossDuration > fatigueRestPauseMs {
		rest = clamp(fv.FocusLossDuration/fatigueLongBreakMs, 0, 1)
	}

	longBreak := 0.0
	if m.lastEventMs != 0 {
		gap := float64(nowUnixMs - m.lastEventMs)
		if gap > fatigueLongBreakMs {
			longBreak = clamp(gap/(4*fatigueLongBreakMs), 0, 1)
		}
	}
	m.lastEventMs = nowUnixMs

	m.value = clamp(m.value+fatigueBeta*load-fatigueGamma*rest-fatigueDelta*longBreak, 0, 1)
	return m.value
}

func (m *FatigueModel) Value() float64 { return m.value }

type FatigueSnapshot struct {
	Value       float64
	LastEventMs int64
}

func (m *FatigueModel) Snapshot() FatigueSnapshot {
	return FatigueSnapshot{Value: m.value, LastEventMs: m.lastEventMs}
}

func (m *FatigueModel) Restore(s FatigueSnapshot) {
	m.value, m.lastEventMs = s.Value, s.LastEventMs
}

// MotivationModel tracks M in [-1,1] via a leaky integrator over
// success/frustration/streak (§4.D "Motivation").
type MotivationModel struct {
	value  float64
	streak int
}

func NewMotivationModel() *MotivationModel { return &MotivationModel{} }

const (
	motivationRho    = 0.9
	motivationKappa  = 0.25
	motivationLambda = 0.3
	motivationMu     = 0.05
)

// Update folds correctness and retry-derived frustration into motivation.
func (m *MotivationModel) Update(isCorrect bool, retryCount float64) float64 {
	success := 0.0
	if isCorrect {
		success = 1.0
		m.streak++
	} else {
		m.streak = 0
	}
	frustration := clamp(retryCount/3.0, 0, 1)
	streakTerm := clamp(float64(m.streak)/10.0, 0, 1)

	m.value = clamp(motivationRho*m.value+motivationKappa*success-motivationLambda*frustration+motivationMu*streakTerm, -1, 1)
	return m.value
}

func (m *MotivationModel) Value() float64 { return m.value }

type MotivationSnapshot struct {
	Value  float64
	Streak int
}

func (m *MotivationModel) Snapshot() MotivationSnapshot {
	return MotivationSnapshot{Value: m.value, Streak: m.streak}
}

func (m *MotivationModel) Restore(s MotivationSnapshot) {
	m.value, m.streak = s.Value, s.Streak
}

// CognitionModel fuses a slow long-term EMA (β=0.98) with a short-term
// estimate weighted k0/(k0+n), per §4.D "Cognition".
type CognitionModel struct {
	longTerm  Cognition
	n         int
	k0        float64
}

func NewCognitionModel() *CognitionModel {
	return &CognitionModel{longTerm: Cognition{Mem: 0.5, Speed: 0.5}, k0: 5.0}
}

const cognitionLongTermBeta = 0.98

// Update derives a short-term {mem, speed} pair from correctness and a
// response-time z-score against refRT, then fuses it into the long-term
// estimate.
func (m *CognitionModel) Update(isCorrect bool, responseTimeMs, refRTMs float64) Cognition {
	shortMem := 0.0
	if isCorrect {
		shortMem = 1.0
	}
	z := (refRTMs - responseTimeMs) / refRTMs
	shortSpeed := clamp(0.5+z/2, 0, 1)

	m.n++
	wShort := m.k0 / (m.k0 + float64(m.n))

	m.longTerm.Mem = cognitionLongTermBeta*m.longTerm.Mem + (1-cognitionLongTermBeta)*shortMem
	m.longTerm.Speed = cognitionLongTermBeta*m.longTerm.Speed + (1-cognitionLongTermBeta)*shortSpeed

	fused := Cognition{
		Mem:   clamp(wShort*shortMem+(1-wShort)*m.longTerm.Mem, 0, 1),
		Speed: clamp(wShort*shortSpeed+(1-wShort)*m.longTerm.Speed, 0, 1),
	}
	return fused
}

func (m *CognitionModel) Value() Cognition { return m.longTerm }

type CognitionSnapshot struct {
	LongTerm Cognition
	N        int
}

func (m *CognitionModel) Snapshot() CognitionSnapshot {
	return CognitionSnapshot{LongTerm: m.longTerm, N: m.n}
}

func (m *CognitionModel) Restore(s CognitionSnapshot) {
	m.longTerm, m.n = s.LongTerm, s.N
}

// TrendClassifier buckets the last window's A/F/M derivative (§4.D
// "Trend").
type TrendClassifier struct {
	prevA, prevF, prevM float64
	haveHistory          bool
	history              []float64 // recent magnitudes of combined derivative, for variance
}

func NewTrendClassifier() *TrendClassifier { return &TrendClassifier{} }

const (
	trendSlopeThreshold = 0.02
	trendVarThreshold   = 0.05
	trendHistoryLen     = 5
)

// Classify folds in the latest A/F/M and returns the trend tag.
func (c *TrendClassifier) Classify(a, f, m float64) Trend {
	if !c.haveHistory {
		c.prevA, c.prevF, c.prevM = a, f, m
		c.haveHistory = true
		return TrendNone
	}
	dA := a - c.prevA
	dF := f - c.prevF
	dM := m - c.prevM
	c.prevA, c.prevF, c.prevM = a, f, m

	slope := (dA - dF + dM) / 3
	c.history = append(c.history, slope)
	if len(c.history) > trendHistoryLen {
		c.history = c.history[len(c.history)-trendHistoryLen:]
	}

	variance := 0.0
	if len(c.history) > 1 {
		mean := 0.0
		for _, v := range c.history {
			mean += v
		}
		mean /= float64(len(c.history))
		for _, v := range c.history {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(c.history))
	}

	switch {
	case variance < trendVarThreshold && math.Abs(slope) < trendSlopeThreshold:
		return TrendStuck
	case slope > trendSlopeThreshold:
		return TrendUp
	case slope < -trendSlopeThreshold:
		return TrendDown
	default:
		return TrendFlat
	}
}

type TrendSnapshot struct {
	PrevA, PrevF, PrevM float64
	HaveHistory          bool
	History              []float64
}

func (c *TrendClassifier) Snapshot() TrendSnapshot {
	h := make([]float64, len(c.history))
	copy(h, c.history)
	return TrendSnapshot{PrevA: c.prevA, PrevF: c.prevF, PrevM: c.prevM, HaveHistory: c.haveHistory, History: h}
}

func (c *TrendClassifier) Restore(s TrendSnapshot) {
	c.prevA, c.prevF, c.prevM, c.haveHistory = s.PrevA, s.PrevF, s.PrevM, s.HaveHistory
	c.history = append([]float64(nil), s.History...)
}

// UserState is the composed psychometric snapshot the learning layer
// consumes (§3 "UserState").
type UserState struct {
	A          float64
	F          float64
	M          float64
	C          Cognition
	T          Trend
	Confidence float64
	TimestampUnixMs int64
}
