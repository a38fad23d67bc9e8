package learning

import (
	"fmt"
	"math"
	"math/rand"

	"amas/internal/action"
	"amas/internal/modeling"
)

// beta holds a Beta(alpha, beta) posterior's pseudo-counts.
type beta struct {
	Alpha float64
	Beta  float64
}

func newBeta() beta { return beta{Alpha: 1, Beta: 1} }

func (b beta) mean() float64 { return b.Alpha / (b.Alpha + b.Beta) }

func (b beta) variance() float64 {
	s := b.Alpha + b.Beta
	return (b.Alpha * b.Beta) / (s * s * (s + 1))
}

// sample draws one value from Beta(alpha, beta) via the ratio of two
// Gamma(alpha,1)/Gamma(beta,1) draws (§4.E "Thompson Sampling").
func (b beta) sample(rng *rand.Rand) float64 {
	x := sampleGamma(rng, b.Alpha)
	y := sampleGamma(rng, b.Beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma implements Marsaglia-Tsang for shape >= 1, with the
// standard shape<1 boost-by-one-and-rescale adjustment (§4.E).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		shape = 1e-3
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// actionKey is the serialised tuple key Thompson and its context buckets
// index by (§4.E "For each action key (serialised tuple)").
func actionKey(a action.Action) string {
	return fmt.Sprintf("%.2f|%.2f|%s|%d|%d", a.IntervalScale, a.NewRatio, a.Difficulty, a.BatchSize, a.HintLevel)
}

// contextKey discretises error-rate, response-time, and time-of-day into
// 3 buckets each (§3 "ThompsonModel").
func contextKey(ctx Context) string {
	errBucket := bucket3(ctx.RecentErrorRate, 0.2, 0.5)
	rtBucket := bucket3(ctx.ResponseTimeMs, 3000, 7000)
	todBucket := ctx.HourOfDay / 8 // 0-7, 8-15, 16-23
	return fmt.Sprintf("%d|%d|%d", errBucket, rtBucket, todBucket)
}

func bucket3(v, lo, hi float64) int {
	switch {
	case v < lo:
		return 0
	case v < hi:
		return 1
	default:
		return 2
	}
}

// ThompsonModel is the global+contextual Beta-posterior bandit (§4.E
// "Thompson Sampling").
type ThompsonModel struct {
	global     map[string]beta
	contextual map[string]map[string]beta
	contextN   map[string]int // observations per context bucket, for mixing weight
	rng        *rand.Rand
}

func NewThompsonModel(seed int64) *ThompsonModel {
	return &ThompsonModel{
		global:     make(map[string]beta),
		contextual: make(map[string]map[string]beta),
		contextN:   make(map[string]int),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (m *ThompsonModel) Name() string { return "thompson" }

func (m *ThompsonModel) getGlobal(key string) beta {
	if b, ok := m.global[key]; ok {
		return b
	}
	return newBeta()
}

func (m *ThompsonModel) getContextual(key, ctxKey string) beta {
	if per, ok := m.contextual[key]; ok {
		if b, ok := per[ctxKey]; ok {
			return b
		}
	}
	return newBeta()
}

// Select draws a Gamma-ratio Beta sample per action, mixing contextual
// and global draws with a context-count-dependent weight (§4.E).
func (m *ThompsonModel) Select(state modeling.UserState, actions []action.Action, ctx Context) []Vote {
	ctxKey := contextKey(ctx)
	nCtx := float64(m.contextN[ctxKey])
	w := clamp(nCtx/(nCtx+20), 0.3, 0.7)

	votes := make([]Vote, len(actions))
	for i, act := range actions {
		key := actionKey(act)
		gSample := m.getGlobal(key).sample(m.rng)
		cSample := m.getContextual(key, ctxKey).sample(m.rng)
		mixed := w*cSample + (1-w)*gSample

		gb := m.getGlobal(key)
		confidence := gb.mean() * (1 - math.Sqrt(math.Max(0, gb.variance())))
		votes[i] = Vote{ActionIndex: act.Index, Score: mixed, Confidence: clampConfidence(confidence)}
	}
	return votes
}

// Update applies a hard or soft Beta update depending on reward
// (§4.E "update").
func (m *ThompsonModel) Update(state modeling.UserState, chosen action.Action, reward float64, ctx Context) {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return
	}
	key := actionKey(chosen)
	ctxKey := contextKey(ctx)

	gb := m.getGlobal(key)
	cb := m.getContextual(key, ctxKey)

	if reward >= 0.5 {
		gb.Alpha++
		cb.Alpha++
	} else {
		p := clamp01((reward + 1) / 2)
		gb.Alpha += p
		gb.Beta += 1 - p
		cb.Alpha += p
		cb.Beta += 1 - p
	}

	m.global[key] = gb
	if _, ok := m.contextual[key]; !ok {
		m.contextual[key] = make(map[string]beta)
	}
	m.contextual[key][ctxKey] = cb
	m.contextN[ctxKey]++
}

// ThompsonSnapshot is the restorable state of a ThompsonModel.
type ThompsonSnapshot struct {
	Global     map[string]beta
	Contextual map[string]map[string]beta
	ContextN   map[string]int
}

func (m *ThompsonModel) Snapshot() ThompsonSnapshot {
	g := make(map[string]beta, len(m.global))
	for k, v := range m.global {
		g[k] = v
	}
	c := make(map[string]map[string]beta, len(m.contextual))
	for k, per := range m.contextual {
		cp := make(map[string]beta, len(per))
		for ck, v := range per {
			cp[ck] = v
		}
		c[k] = cp
	}
	n := make(map[string]int, len(m.contextN))
	for k, v := range m.contextN {
		n[k] = v
	}
	return ThompsonSnapshot{Global: g, Contextual: c, ContextN: n}
}

// Restore tolerates a missing/nil snapshot by initialising from priors
// (empty maps => Beta(1,1) on first read), per §4.G "Restoration".
func (m *ThompsonModel) Restore(s ThompsonSnapshot) {
	if s.Global != nil {
		m.global = s.Global
	} else {
		m.global = make(map[string]beta)
	}
	if s.Contextual != nil {
		m.contextual = s.Contextual
	} else {
		m.contextual = make(map[string]map[string]beta)
	}
	if s.ContextN != nil {
		m.contextN = s.ContextN
	} else {
		m.contextN = make(map[string]int)
	}
}
