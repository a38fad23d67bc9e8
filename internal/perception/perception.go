// Package perception turns a raw interaction event plus a user's rolling
// window into the feature vector the modeling and learning layers consume.
// It holds no cross-event state of its own beyond the RollingSummary the
// caller threads through it (§4.C).
package perception

import "math"

// WindowSize is the default number of samples a RollingSummary retains
// before the oldest drops (§4.C).
const WindowSize = 10

// RawEvent is one per-user interaction (§3 "RawEvent").
type RawEvent struct {
	WordID             string
	IsCorrect          bool
	ResponseTimeMs     float64
	DwellTimeMs        float64
	TimestampUnixMs    int64
	PauseCount         int
	SwitchCount        int
	RetryCount         int
	FocusLossDurationMs float64
	InteractionDensity  float64
}

// sample is one window entry; only the fields a CV needs are kept.
type sample struct {
	responseTime       float64
	pauseCount         float64
	switchCount        float64
	focusLossDuration  float64
	dwellTime          float64
	interactionDensity float64
}

// RollingSummary keeps the last N samples for one user and exposes their
// windowed mean and coefficient of variation (std/mean, mean-floored).
type RollingSummary struct {
	size    int
	buf     []sample
	nextIdx int
	filled  int
}

// NewRollingSummary creates a summary with the default window size.
func NewRollingSummary() *RollingSummary {
	return NewRollingSummaryWithSize(WindowSize)
}

func NewRollingSummaryWithSize(n int) *RollingSummary {
	if n <= 0 {
		n = WindowSize
	}
	return &RollingSummary{size: n, buf: make([]sample, n)}
}

// Push adds the latest event to the window, evicting the oldest sample
// once the window is full (§4.C "On window rollover").
func (r *RollingSummary) Push(e RawEvent) {
	s := sample{
		responseTime:       e.ResponseTimeMs,
		pauseCount:         float64(e.PauseCount),
		switchCount:        float64(e.SwitchCount),
		focusLossDuration:  e.FocusLossDurationMs,
		dwellTime:          e.DwellTimeMs,
		interactionDensity: e.InteractionDensity,
	}
	r.buf[r.nextIdx] = s
	r.nextIdx = (r.nextIdx + 1) % r.size
	if r.filled < r.size {
		r.filled++
	}
}

func (r *RollingSummary) active() []sample {
	return r.buf[:r.filled]
}

func meanOf(xs []sample, pick func(sample) float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += pick(x)
	}
	return sum / float64(len(xs))
}

// coefficientOfVariation is std/mean with a mean floor to avoid division
// blow-up on near-zero means (§4.C).
func coefficientOfVariation(xs []sample, pick func(sample) float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := meanOf(xs, pick)
	floored := mean
	if math.Abs(floored) < 1e-6 {
		floored = 1e-6
	}
	variance := 0.0
	for _, x := range xs {
		d := pick(x) - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance) / math.Abs(floored)
}

// WindowStats is the set of windowed statistics the feature builder reads
// off a RollingSummary.
type WindowStats struct {
	MeanResponseTime float64
	CVResponseTime   float64
	MeanPauseCount   float64
	CVPauseCount     float64
	MeanSwitchCount  float64
	CVSwitchCount    float64
	MeanFocusLoss    float64
	CVFocusLoss      float64
	MeanDwellTime    float64
	CVDwellTime      float64
	MeanDensity      float64
	CVDensity        float64
}

// Stats computes the windowed means and CVs over the samples currently
// held in the window.
func (r *RollingSummary) Stats() WindowStats {
	xs := r.active()
	return WindowStats{
		MeanResponseTime: meanOf(xs, func(s sample) float64 { return s.responseTime }),
		CVResponseTime:   coefficientOfVariation(xs, func(s sample) float64 { return s.responseTime }),
		MeanPauseCount:   meanOf(xs, func(s sample) float64 { return s.pauseCount }),
		CVPauseCount:     coefficientOfVariation(xs, func(s sample) float64 { return s.pauseCount }),
		MeanSwitchCount:  meanOf(xs, func(s sample) float64 { return s.switchCount }),
		CVSwitchCount:    coefficientOfVariation(xs, func(s sample) float64 { return s.switchCount }),
		MeanFocusLoss:    meanOf(xs, func(s sample) float64 { return s.focusLossDuration }),
		CVFocusLoss:      coefficientOfVariation(xs, func(s sample) float64 { return s.focusLossDuration }),
		MeanDwellTime:    meanOf(xs, func(s sample) float64 { return s.dwellTime }),
		CVDwellTime:      coefficientOfVariation(xs, func(s sample) float64 { return s.dwellTime }),
		MeanDensity:      meanOf(xs, func(s sample) float64 { return s.interactionDensity }),
		CVDensity:        coefficientOfVariation(xs, func(s sample) float64 { return s.interactionDensity }),
	}
}

// FeatureVector is the stateless distillation of one event plus its
// window, consumed by the modeling layer's sub-models.
type FeatureVector struct {
	ResponseTimeMs     float64
	ResponseTimeCV     float64
	PauseCount         float64
	PauseCountCV       float64
	SwitchCount        float64
	SwitchCountCV      float64
	FocusLossDuration  float64
	FocusLossCV        float64
	DwellTime          float64
	DwellTimeCV        float64
	InteractionDensity float64
	DensityCV          float64
	IsCorrect          bool
	RetryCount         float64
}

// Extract is the stateless (RawEvent, RollingSummary) -> FeatureVector
// transform (§4.C). It does not mutate the summary; the caller decides
// when to Push.
func Extract(e RawEvent, summary *RollingSummary) FeatureVector {
	st := summary.Stats()
	return FeatureVector{
		ResponseTimeMs:     e.ResponseTimeMs,
		ResponseTimeCV:     st.CVResponseTime,
		PauseCount:         float64(e.PauseCount),
		PauseCountCV:       st.CVPauseCount,
		SwitchCount:        float64(e.SwitchCount),
		SwitchCountCV:      st.CVSwitchCount,
		FocusLossDuration:  e.FocusLossDurationMs,
		FocusLossCV:        st.CVFocusLoss,
		DwellTime:          e.DwellTimeMs,
		DwellTimeCV:        st.CVDwellTime,
		InteractionDensity: e.InteractionDensity,
		DensityCV:          st.CVDensity,
		IsCorrect:          e.IsCorrect,
		RetryCount:         float64(e.RetryCount),
	}
}
