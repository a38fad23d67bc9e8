package action

// RewardWeights is the tuple the reward function composes with (§4.I):
//
//	r = Wc*correctness + Ws*speedTerm - Wf*fatigue - Wfr*frustration + We*engagement
type RewardWeights struct {
	Correctness float64
	Speed       float64
	Fatigue     float64
	Frustration float64
	Engagement  float64
}

// Reference response time for speedTerm, in milliseconds (§4.I).
const ReferenceResponseTimeMs = 5000.0

// Standard weights correctness most heavily (0.40), then fatigue; cram favours throughput
// (speed, low fatigue penalty) over correctness weighting; relaxed
// favours engagement and is gentle on frustration (§4.I "reward profile").
var (
	RewardWeightsStandard = RewardWeights{
		Correctness: 0.40,
		Speed:       0.15,
		Fatigue:     0.20,
		Frustration: 0.15,
		Engagement:  0.10,
	}
	RewardWeightsCram = RewardWeights{
		Correctness: 0.30,
		Speed:       0.30,
		Fatigue:     0.10,
		Frustration: 0.20,
		Engagement:  0.10,
	}
	RewardWeightsRelaxed = RewardWeights{
		Correctness: 0.35,
		Speed:       0.05,
		Fatigue:     0.25,
		Frustration: 0.10,
		Engagement:  0.25,
	}
)

// WeightsForProfile resolves a named reward profile to its weight tuple,
// falling back to the standard profile for an unrecognised name.
func WeightsForProfile(profile string) RewardWeights {
	switch profile {
	case "cram":
		return RewardWeightsCram
	case "relaxed":
		return RewardWeightsRelaxed
	default:
		return RewardWeightsStandard
	}
}

// DefaultAttentionWeights are the fixed coefficients the attention
// sub-model applies to its inputs when no deployment-specific override is
// configured (§4.D "Attention").
var DefaultAttentionWeights = struct {
	ResponseTime float64
	SwitchRate   float64
	FocusLoss    float64
	Dwell        float64
}{
	ResponseTime: 0.35,
	SwitchRate:   0.25,
	FocusLoss:    0.25,
	Dwell:        0.15,
}
