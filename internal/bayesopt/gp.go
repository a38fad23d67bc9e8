// Package bayesopt is the offline background loop that tunes the reward
// weights and learner hyperparameters via Bayesian optimisation over a
// Gaussian process, triggered by the stats/effect tracker rather than the
// event path (§4.L).
package bayesopt

import (
	"math"

	"amas/internal/linalg"
)

// Observation is one (params, value) pair the GP has been told about —
// params is a low-dimensional hyperparameter vector (e.g. reward
// weights), value a weekly aggregate score (§4.L).
type Observation struct {
	Params []float64
	Value  float64
}

// GP is a Gaussian process posterior over the Matern-5/2 kernel, refit
// from scratch on every new observation (the problem sizes here are tiny
// — tens of weekly evaluations — so there is no need for incremental
// Cholesky maintenance the way LinUCB needs it).
type GP struct {
	lengthScale float64
	sigma2      float64
	noise       float64

	obs []Observation
	l   *linalg.Matrix // Cholesky factor of K + noise*I
	y   []float64
}

func NewGP(lengthScale, sigma2, noise float64) *GP {
	return &GP{lengthScale: lengthScale, sigma2: sigma2, noise: noise}
}

// Fit rebuilds the kernel matrix and its Cholesky factor from the
// accumulated observations.
func (g *GP) Fit(obs []Observation) {
	g.obs = obs
	n := len(obs)
	if n == 0 {
		g.l = nil
		g.y = nil
		return
	}
	k := linalg.NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := linalg.Matern52(obs[i].Params, obs[j].Params, g.lengthScale, g.sigma2)
			if i == j {
				v += g.noise
			}
			k.Set(i, j, v)
		}
	}
	l, err := linalg.Cholesky(k, g.noise)
	if err != nil {
		l = linalg.IdentityMatrix(n, math.Sqrt(g.noise))
	}
	g.l = l
	g.y = make([]float64, n)
	for i, o := range obs {
		g.y[i] = o.Value
	}
}

// Predict returns the posterior mean and standard deviation at x.
func (g *GP) Predict(x []float64) (mean, std float64) {
	if g.l == nil || len(g.obs) == 0 {
		return 0, math.Sqrt(g.sigma2)
	}
	kStar := make([]float64, len(g.obs))
	for i, o := range g.obs {
		kStar[i] = linalg.Matern52(x, o.Params, g.lengthScale, g.sigma2)
	}
	alpha := linalg.SolveCholesky(g.l, g.y)
	mean = 0
	for i := range alpha {
		mean += alpha[i] * kStar[i]
	}

	width := linalg.ConfidenceWidth(g.l, kStar)
	variance := g.sigma2 - width*width
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// UCB is the acquisition function mean + beta*std (§4.L "Suggestion = UCB").
func (g *GP) UCB(x []float64, beta float64) float64 {
	mean, std := g.Predict(x)
	return mean + beta*std
}
