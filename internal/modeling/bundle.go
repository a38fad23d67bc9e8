package modeling

import "amas/internal/perception"

// Bundle owns one user's four sub-models plus the trend classifier and
// produces the composed UserState on each event. It belongs entirely to
// the engine's per-user ModelBundle (§2 "Ownership & lifecycle").
type Bundle struct {
	Attention *AttentionModel
	Fatigue   *FatigueModel
	Motivation *MotivationModel
	Cognition *CognitionModel
	Trend     *TrendClassifier

	refRTMs float64
	n       int
}

func NewBundle() *Bundle {
	return &Bundle{
		Attention:  NewAttentionModel(),
		Fatigue:    NewFatigueModel(),
		Motivation: NewMotivationModel(),
		Cognition:  NewCognitionModel(),
		Trend:      NewTrendClassifier(),
		refRTMs:    5000,
	}
}

// Update folds one event's feature vector into all four sub-models and
// returns the composed UserState (§4.D, event flow step 2).
func (b *Bundle) Update(fv perception.FeatureVector, nowUnixMs int64) UserState {
	a := b.Attention.Update(fv)
	f := b.Fatigue.Update(fv, nowUnixMs)
	m := b.Motivation.Update(fv.IsCorrect, fv.RetryCount)
	c := b.Cognition.Update(fv.IsCorrect, fv.ResponseTimeMs, b.refRTMs)
	t := b.Trend.Classify(a, f, m)
	b.n++

	confidence := minFloat(1.0, float64(b.n)/20.0)

	return UserState{
		A:               clamp(a, 0, 1),
		F:               clamp(f, 0, 1),
		M:               clamp(m, -1, 1),
		C:               c,
		T:               t,
		Confidence:      confidence,
		TimestampUnixMs: nowUnixMs,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// BundleSnapshot is the restorable state of a Bundle (§2 "on eviction...
// serialised to persistence").
type BundleSnapshot struct {
	Attention  AttentionSnapshot
	Fatigue    FatigueSnapshot
	Motivation MotivationSnapshot
	Cognition  CognitionSnapshot
	Trend      TrendSnapshot
	N          int
}

func (b *Bundle) Snapshot() BundleSnapshot {
	return BundleSnapshot{
		Attention:  b.Attention.Snapshot(),
		Fatigue:    b.Fatigue.Snapshot(),
		Motivation: b.Motivation.Snapshot(),
		Cognition:  b.Cognition.Snapshot(),
		Trend:      b.Trend.Snapshot(),
		N:          b.n,
	}
}

func (b *Bundle) Restore(s BundleSnapshot) {
	b.Attention.Restore(s.Attention)
	b.Fatigue.Restore(s.Fatigue)
	b.Motivation.Restore(s.Motivation)
	b.Cognition.Restore(s.Cognition)
	b.Trend.Restore(s.Trend)
	b.n = s.N
}
