package bayesopt

import (
	"math/rand"
)

// Bound is one hyperparameter's inclusive box constraint.
type Bound struct {
	Lo, Hi float64
}

// Optimizer drives the GP acquisition search and remembers all
// observations seen so far (§4.L "suggestNext, recordEvaluation,
// getBest, suggestBatch(k)").
type Optimizer struct {
	gp     *GP
	bounds []Bound
	beta   float64
	rng    *rand.Rand
	best   *Observation
}

func NewOptimizer(bounds []Bound, beta float64, seed int64) *Optimizer {
	return &Optimizer{
		gp:     NewGP(1.0, 1.0, 1e-3),
		bounds: bounds,
		beta:   beta,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// RecordEvaluation folds a new (params, value) pair in and refits the GP.
func (o *Optimizer) RecordEvaluation(obs Observation) {
	o.gp.obs = append(o.gp.obs, obs)
	o.gp.Fit(o.gp.obs)
	if o.best == nil || obs.Value > o.best.Value {
		cp := obs
		o.best = &cp
	}
}

// GetBest returns the best observation recorded so far, or nil if none.
func (o *Optimizer) GetBest() *Observation { return o.best }

func (o *Optimizer) randomPoint() []float64 {
	x := make([]float64, len(o.bounds))
	for i, b := range o.bounds {
		x[i] = b.Lo + o.rng.Float64()*(b.Hi-b.Lo)
	}
	return x
}

// SuggestNext maximises UCB via a grid pass, a random-restart pass, and a
// coordinate-descent refinement, as documented (§4.L).
func (o *Optimizer) SuggestNext() []float64 {
	const gridPerDim = 5
	const randomRestarts = 20
	const coordSteps = 10

	best := o.randomPoint()
	bestScore := o.gp.UCB(best, o.beta)

	// Grid pass over the first two dims (keeps cost bounded regardless of
	// dimensionality); remaining dims held at their midpoint.
	if len(o.bounds) > 0 {
		mid := make([]float64, len(o.bounds))
		for i, b := range o.bounds {
			mid[i] = (b.Lo + b.Hi) / 2
		}
		dims := len(o.bounds)
		if dims > 2 {
			dims = 2
		}
		candidate := append([]float64(nil), mid...)
		var walk func(d int)
		walk = func(d int) {
			if d == dims {
				score := o.gp.UCB(candidate, o.beta)
				if score > bestScore {
					bestScore = score
					best = append([]float64(nil), candidate...)
				}
				return
			}
			b := o.bounds[d]
			for i := 0; i < gridPerDim; i++ {
				frac := float64(i) / float64(gridPerDim-1)
				candidate[d] = b.Lo + frac*(b.Hi-b.Lo)
				walk(d + 1)
			}
		}
		walk(0)
	}

	// Random-restart pass.
	for i := 0; i < randomRestarts; i++ {
		x := o.randomPoint()
		score := o.gp.UCB(x, o.beta)
		if score > bestScore {
			bestScore = score
			best = x
		}
	}

	// Coordinate descent refinement around the incumbent.
	current := append([]float64(nil), best...)
	currentScore := bestScore
	for step := 0; step < coordSteps; step++ {
		improved := false
		for d, b := range o.bounds {
			stepSize := (b.Hi - b.Lo) / float64(10+step)
			for _, delta := range []float64{stepSize, -stepSize} {
				candidate := append([]float64(nil), current...)
				candidate[d] = clampBound(candidate[d]+delta, b)
				score := o.gp.UCB(candidate, o.beta)
				if score > currentScore {
					currentScore = score
					current = candidate
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	return current
}

func clampBound(v float64, b Bound) float64 {
	if v < b.Lo {
		return b.Lo
	}
	if v > b.Hi {
		return b.Hi
	}
	return v
}

// SuggestBatch returns k diverse suggestions by repeatedly suggesting and
// feeding a pessimistic placeholder value back in (a liar strategy),
// restoring the real observation set afterward.
func (o *Optimizer) SuggestBatch(k int) [][]float64 {
	saved := append([]Observation(nil), o.gp.obs...)
	defer func() {
		o.gp.obs = saved
		o.gp.Fit(saved)
	}()

	out := make([][]float64, 0, k)
	for i := 0; i < k; i++ {
		x := o.SuggestNext()
		out = append(out, x)
		mean, _ := o.gp.Predict(x)
		o.gp.obs = append(o.gp.obs, Observation{Params: x, Value: mean})
		o.gp.Fit(o.gp.obs)
	}
	return out
}
