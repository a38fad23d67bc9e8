package learning

import (
	"math"

	"amas/internal/action"
	"amas/internal/modeling"
)

// BuildFeatureVector assembles the frozen 22-dimensional LinUCB feature
// layout (§4.E "LinUCB (22-d)"). All inputs are clamped to their
// documented ranges before assembly.
func BuildFeatureVector(state modeling.UserState, a action.Action, ctx Context) []float64 {
	x := make([]float64, FeatureDim)

	errorRate := clamp01(ctx.RecentErrorRate)
	intervalScale := clamp(a.IntervalScale, 0.5, 1.5)
	newRatio := clamp(a.NewRatio, 0.05, 0.5)
	numericDifficulty := a.Difficulty.Numeric()
	batchNorm := clamp(float64(a.BatchSize)/20.0, 0, 1)
	hintNorm := clamp(float64(a.HintLevel)/3.0, 0, 1)
	rtNorm := clamp(ctx.ResponseTimeMs/5000.0, 0, 2)
	hourFrac := math.Mod(float64(ctx.HourOfDay), 24) / 24.0

	x[0] = clamp01(state.A)
	x[1] = clamp01(state.F)
	x[2] = clamp01(state.C.Mem)
	x[3] = clamp01(state.C.Speed)
	x[4] = clamp(state.M, -1, 1)

	x[5] = errorRate

	x[6] = intervalScale
	x[7] = newRatio
	x[8] = numericDifficulty
	x[9] = batchNorm
	x[10] = hintNorm

	x[11] = x[1] * intervalScale

	x[12] = math.Sin(2 * math.Pi * hourFrac)
	x[13] = math.Cos(2 * math.Pi * hourFrac)
	if hourFrac > 0.33 && hourFrac < 0.75 {
		x[14] = 1
	}

	x[15] = errorRate * x[1]
	x[16] = errorRate * intervalScale
	x[17] = rtNorm * x[0]
	if a.Difficulty == action.Hard {
		x[18] = x[2] * 0.8
	} else {
		x[18] = x[2] * 0.2
	}
	x[19] = x[4] * newRatio
	x[20] = (1 - x[0]) * hintNorm

	x[21] = 1

	return x
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
