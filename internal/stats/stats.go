// Package stats computes per-user weekly aggregates and an "effect
// score" trend, then hands the weekly reward aggregate to the Bayesian
// optimiser once per ISO week per deployment (§4.M).
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"amas/internal/bayesopt"
)

// Sample is one event's contribution to a user's weekly aggregate.
type Sample struct {
	UserID    string
	Timestamp time.Time
	Reward    float64
	Attention float64
	Fatigue   float64
	Motivation float64
	CognitionMem float64
	ColdStartCompletedAtEvent int // 0 if not yet completed this week
}

// Aggregate is one user's computed weekly statistics (§4.M.1).
type Aggregate struct {
	UserID               string
	ISOWeek              string
	MeanReward           float64
	StdevReward          float64
	MeanAttention        float64
	MeanFatigue          float64
	MeanMotivation       float64
	ColdStartLatencyEvents int // events to reach normal, -1 if not observed
	SampleCount          int
}

// EffectAnalyser is the narrow interface the out-of-scope LLM-based
// effect analyser is consumed through (§4.M.1).
type EffectAnalyser interface {
	Analyse(ctx context.Context, agg Aggregate) (narrative string, err error)
}

// NoopAnalyser lets the tracker run without the external analyser wired.
type NoopAnalyser struct{}

func (NoopAnalyser) Analyse(ctx context.Context, agg Aggregate) (string, error) {
	return "", nil
}

// BayesOptRecorder is the narrow surface the tracker drives the
// optimiser through (matches bayesopt.Optimizer.RecordEvaluation).
type BayesOptRecorder interface {
	RecordEvaluation(obs bayesopt.Observation)
}

// Tracker accumulates per-user samples into weekly buckets and computes
// effect scores over a trailing window.
type Tracker struct {
	samples  map[string][]Sample // userID -> samples, time-ordered
	analyser EffectAnalyser
	recorder BayesOptRecorder
	// lastRecordedWeek guards "once per ISO week per deployment".
	lastRecordedWeek string
	currentParams    func() []float64
}

func NewTracker(analyser EffectAnalyser, recorder BayesOptRecorder, currentParams func() []float64) *Tracker {
	if analyser == nil {
		analyser = NoopAnalyser{}
	}
	return &Tracker{
		samples:       make(map[string][]Sample),
		analyser:      analyser,
		recorder:      recorder,
		currentParams: currentParams,
	}
}

// Observe records one event's contribution.
func (t *Tracker) Observe(s Sample) {
	t.samples[s.UserID] = append(t.samples[s.UserID], s)
}

func isoWeekKey(ts time.Time) string {
	year, week := ts.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeeklyAggregate computes the aggregate for one user/ISO-week
// (§4.M.1 "WeeklyAggregate(userID, isoWeek)").
func (t *Tracker) WeeklyAggregate(userID, isoWeek string) (Aggregate, error) {
	all := t.samples[userID]
	var week []Sample
	for _, s := range all {
		if isoWeekKey(s.Timestamp) == isoWeek {
			week = append(week, s)
		}
	}
	if len(week) == 0 {
		return Aggregate{}, fmt.Errorf("stats: no samples for user %s in week %s", userID, isoWeek)
	}

	agg := Aggregate{UserID: userID, ISOWeek: isoWeek, ColdStartLatencyEvents: -1, SampleCount: len(week)}
	var sumReward, sumA, sumF, sumM float64
	for i, s := range week {
		sumReward += s.Reward
		sumA += s.Attention
		sumF += s.Fatigue
		sumM += s.Motivation
		if s.ColdStartCompletedAtEvent > 0 && agg.ColdStartLatencyEvents < 0 {
			agg.ColdStartLatencyEvents = i + 1
		}
	}
	n := float64(len(week))
	agg.MeanReward = sumReward / n
	agg.MeanAttention = sumA / n
	agg.MeanFatigue = sumF / n
	agg.MeanMotivation = sumM / n

	var variance float64
	for _, s := range week {
		d := s.Reward - agg.MeanReward
		variance += d * d
	}
	agg.StdevReward = math.Sqrt(variance / n)

	return agg, nil
}

// EffectScore fits a linear trend of UserState.C.mem over the trailing
// `days` window and returns its slope, plus whether enough data was
// available to fit (§4.M.1 "EffectScore(userID, days)").
func (t *Tracker) EffectScore(userID string, days int) (float64, bool, error) {
	all := t.samples[userID]
	if len(all) == 0 {
		return 0, false, nil
	}
	cutoff := all[len(all)-1].Timestamp.Add(-time.Duration(days) * 24 * time.Hour)

	var xs, ys []float64
	for _, s := range all {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		xs = append(xs, s.Timestamp.Sub(cutoff).Hours())
		ys = append(ys, s.CognitionMem)
	}
	if len(xs) < 3 {
		return 0, false, nil
	}

	slope := linearSlope(xs, ys)
	return slope, true, nil
}

func linearSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if math.Abs(denom) < 1e-9 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// MaybeTriggerBayesOpt records the process-wide weekly reward mean across
// all users as a single evaluation, once per ISO week per deployment
// (§4.M.1 "not per user — the optimiser tunes process-wide...").
func (t *Tracker) MaybeTriggerBayesOpt(isoWeek string) {
	if t.recorder == nil || isoWeek == t.lastRecordedWeek {
		return
	}

	var sum float64
	var count int
	for userID := range t.samples {
		agg, err := t.WeeklyAggregate(userID, isoWeek)
		if err != nil {
			continue
		}
		sum += agg.MeanReward
		count++
	}
	if count == 0 {
		return
	}

	params := []float64{}
	if t.currentParams != nil {
		params = t.currentParams()
	}
	t.recorder.RecordEvaluation(bayesopt.Observation{Params: params, Value: sum / float64(count)})
	t.lastRecordedWeek = isoWeek
}
