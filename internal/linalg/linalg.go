// Package linalg is the pure, allocation-lean numerical kernel underneath
// the learning layer: Cholesky factorisation and its rank-1 update,
// triangular solves, the Matern-5/2 kernel, and the sanitisation contracts
// every caller upstream relies on. Nothing here touches a user's bundle or
// any I/O — it is deterministic given its inputs, which is what lets the
// worker pool (component J) run it off the event's own goroutine.
package linalg

import (
	"fmt"
	"math"

	"amas/internal/amaserr"
)

// Sanitisation bounds (§4.A "Numerical contracts").
const (
	MaxFeatureMagnitude = 50.0
	MinCholeskyDiag      = 1e-6
	MaxCholeskyDiag      = 1e9
	SolveEpsilon         = 1e-10
	RankOneAbandonBound  = 1e12
)

// SanitiseVector clamps |x_i| <= 50 and replaces any NaN/Inf entry with 0,
// reporting whether anything was changed so the caller can log a
// sanitisation event (§7 kind 1).
func SanitiseVector(x []float64) (out []float64, dirty bool) {
	out = make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
			dirty = true
			continue
		}
		if v > MaxFeatureMagnitude {
			out[i] = MaxFeatureMagnitude
			dirty = true
		} else if v < -MaxFeatureMagnitude {
			out[i] = -MaxFeatureMagnitude
			dirty = true
		} else {
			out[i] = v
		}
	}
	return out, dirty
}

// Finite reports whether a scalar is usable (not NaN, not +/-Inf).
func Finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Matrix is a dense, row-major d x d matrix stored as a flat slice so the
// worker protocol can ship it as a plain number array (§6 "Worker
// protocol").
type Matrix struct {
	D    int
	Data []float64
}

func NewMatrix(d int) *Matrix {
	return &Matrix{D: d, Data: make([]float64, d*d)}
}

func IdentityMatrix(d int, scale float64) *Matrix {
	m := NewMatrix(d)
	for i := 0; i < d; i++ {
		m.Set(i, i, scale)
	}
	return m
}

func (m *Matrix) At(i, j int) float64    { return m.Data[i*m.D+j] }
func (m *Matrix) Set(i, j int, v float64) { m.Data[i*m.D+j] = v }

func (m *Matrix) Clone() *Matrix {
	cp := NewMatrix(m.D)
	copy(cp.Data, m.Data)
	return cp
}

// InfNorm is max absolute row sum, used by callers to scale the P2
// tolerance ||L L^T - A||_inf <= 1e-4 * ||A||_inf.
func (m *Matrix) InfNorm() float64 {
	best := 0.0
	for i := 0; i < m.D; i++ {
		sum := 0.0
		for j := 0; j < m.D; j++ {
			sum += math.Abs(m.At(i, j))
		}
		if sum > best {
			best = sum
		}
	}
	return best
}

// Symmetrise averages A with its transpose in place and zeroes any
// non-finite entry, per §4.A's Cholesky preamble.
func (m *Matrix) Symmetrise() {
	for i := 0; i < m.D; i++ {
		for j := i + 1; j < m.D; j++ {
			a, b := m.At(i, j), m.At(j, i)
			if !Finite(a) {
				a = 0
			}
			if !Finite(b) {
				b = 0
			}
			avg := (a + b) / 2
			m.Set(i, j, avg)
			m.Set(j, i, avg)
		}
		if !Finite(m.At(i, i)) {
			m.Set(i, i, 0)
		}
	}
}

// Cholesky computes the lower Cholesky factor L such that L L^T = A, using
// the Banachiewicz algorithm. Diagonal accumulators that come out
// non-positive or non-finite are floored to max(lambda, eps)+eps rather
// than failing the whole decomposition, per §4.A.
func Cholesky(a *Matrix, lambda float64) (*Matrix, error) {
	d := a.D
	work := a.Clone()
	work.Symmetrise()

	l := NewMatrix(d)
	const eps = 1e-12

	for i := 0; i < d; i++ {
		for j := 0; j <= i; j++ {
			sum := work.At(i, j)
			for k := 0; k < j; k++ {
				sum -= l.At(i, k) * l.At(j, k)
			}
			if i == j {
				if !Finite(sum) || sum <= eps {
					sum = math.Max(lambda, eps) + eps
				}
				diag := math.Sqrt(sum)
				if diag < MinCholeskyDiag {
					diag = MinCholeskyDiag
				}
				if diag > MaxCholeskyDiag {
					return nil, fmt.Errorf("linalg: diagonal %v exceeds %v: %w", diag, MaxCholeskyDiag, amaserr.ErrNumericInstability)
				}
				l.Set(i, j, diag)
			} else {
				ljj := l.At(j, j)
				if ljj < MinCholeskyDiag {
					ljj = MinCholeskyDiag
				}
				v := sum / ljj
				if !Finite(v) {
					return nil, fmt.Errorf("linalg: non-finite off-diagonal at (%d,%d): %w", i, j, amaserr.ErrNumericInstability)
				}
				l.Set(i, j, v)
			}
		}
	}
	return l, nil
}

// RankOneUpdate performs the Givens-style update A' = A + x x^T => L' from
// L, following §4.A exactly. On any non-finite value, a magnitude above
// 1e12, or a diagonal below minDiag it abandons the update and returns an
// error — the caller must fall back to a full Cholesky re-decomposition.
// x is consumed (copied internally); the input slice is not mutated.
func RankOneUpdate(l *Matrix, x []float64, minDiag float64) (*Matrix, error) {
	d := l.D
	if len(x) != d {
		return nil, fmt.Errorf("linalg: rank1 update dimension mismatch: %w", amaserr.ErrNumericInstability)
	}

	out := l.Clone()
	xw := make([]float64, d)
	copy(xw, x)

	for k := 0; k < d; k++ {
		lkk := out.At(k, k)
		r := math.Hypot(lkk, xw[k])
		if !Finite(r) || r < minDiag {
			return nil, fmt.Errorf("linalg: rank1 update produced diagonal below %v at col %d: %w", minDiag, k, amaserr.ErrNumericInstability)
		}
		if lkk == 0 {
			return nil, fmt.Errorf("linalg: rank1 update hit zero pivot at col %d: %w", k, amaserr.ErrNumericInstability)
		}
		c := r / lkk
		s := xw[k] / lkk
		out.Set(k, k, r)

		for i := k + 1; i < d; i++ {
			lik := out.At(i, k)
			newLik := (lik + s*xw[i]) / c
			newXi := c*xw[i] - s*newLik
			if !Finite(newLik) || !Finite(newXi) || math.Abs(newLik) > RankOneAbandonBound {
				return nil, fmt.Errorf("linalg: rank1 update diverged at (%d,%d): %w", i, k, amaserr.ErrNumericInstability)
			}
			out.Set(i, k, newLik)
			xw[i] = newXi
		}
	}

	for i := 0; i < d; i++ {
		if out.At(i, i) < minDiag {
			return nil, fmt.Errorf("linalg: rank1 update diagonal %d below floor: %w", i, amaserr.ErrNumericInstability)
		}
	}
	return out, nil
}

// SolveCholesky solves L L^T z = y via forward + back substitution, with
// divisors floored at SolveEpsilon.
func SolveCholesky(l *Matrix, y []float64) []float64 {
	d := l.D
	w := make([]float64, d)
	// Forward solve: L w = y
	for i := 0; i < d; i++ {
		sum := y[i]
		for k := 0; k < i; k++ {
			sum -= l.At(i, k) * w[k]
		}
		diag := l.At(i, i)
		if math.Abs(diag) < SolveEpsilon {
			diag = SolveEpsilon
		}
		w[i] = sum / diag
	}
	// Back solve: L^T z = w
	z := make([]float64, d)
	for i := d - 1; i >= 0; i-- {
		sum := w[i]
		for k := i + 1; k < d; k++ {
			sum -= l.At(k, i) * z[k]
		}
		diag := l.At(i, i)
		if math.Abs(diag) < SolveEpsilon {
			diag = SolveEpsilon
		}
		z[i] = sum / diag
	}
	return z
}

// ConfidenceWidth computes sqrt(x^T A^-1 x) via one forward solve (L w = x)
// plus the squared norm of w, since x^T A^-1 x = x^T (L L^T)^-1 x = w^T w
// when w solves L w = x. Clipped to 0 if numerics yield negative.
func ConfidenceWidth(l *Matrix, x []float64) float64 {
	d := l.D
	w := make([]float64, d)
	for i := 0; i < d; i++ {
		sum := x[i]
		for k := 0; k < i; k++ {
			sum -= l.At(i, k) * w[k]
		}
		diag := l.At(i, i)
		if math.Abs(diag) < SolveEpsilon {
			diag = SolveEpsilon
		}
		w[i] = sum / diag
	}
	sq := 0.0
	for _, v := range w {
		sq += v * v
	}
	if sq < 0 || !Finite(sq) {
		return 0
	}
	return math.Sqrt(sq)
}

// Matern52 is the Matern-5/2 covariance kernel used by the Bayesian
// optimiser's Gaussian process; one lengthScale divides every dimension.
func Matern52(x1, x2 []float64, lengthScale, sigma2 float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := (x1[i] - x2[i]) / lengthScale
		sumSq += diff * diff
	}
	r := math.Sqrt(sumSq)
	root5r := math.Sqrt(5) * r
	return sigma2 * (1 + root5r + 5*r*r/3) * math.Exp(-root5r)
}
