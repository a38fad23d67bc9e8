package linalg

import (
	"math"
	"testing"
)

func TestCholeskyReconstructsMatrix(t *testing.T) {
	a := IdentityMatrix(4, 1.0)
	a.Set(1, 0, 0.3)
	a.Set(0, 1, 0.3)
	a.Set(2, 1, 0.1)
	a.Set(1, 2, 0.1)

	l, err := Cholesky(a, 1.0)
	if err != nil {
		t.Fatalf("cholesky failed: %v", err)
	}

	recon := NewMatrix(4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += l.At(i, k) * l.At(j, k)
			}
			recon.Set(i, j, sum)
		}
	}

	diff := NewMatrix(4)
	for i := range diff.Data {
		diff.Data[i] = recon.Data[i] - a.Data[i]
	}
	if diff.InfNorm() > 1e-4*a.InfNorm() {
		t.Fatalf("||LL^T - A|| too large: %v", diff.InfNorm())
	}
	for i := 0; i < 4; i++ {
		if l.At(i, i) < MinCholeskyDiag {
			t.Fatalf("diag[%d] below floor: %v", i, l.At(i, i))
		}
	}
}

func TestRankOneUpdateMatchesFullDecomposition(t *testing.T) {
	a := IdentityMatrix(3, 1.0)
	l, err := Cholesky(a, 1.0)
	if err != nil {
		t.Fatalf("initial cholesky failed: %v", err)
	}

	x := []float64{0.5, -0.2, 0.1}
	updated, err := RankOneUpdate(l, x, MinCholeskyDiag)
	if err != nil {
		t.Fatalf("rank1 update failed: %v", err)
	}

	want := a.Clone()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want.Set(i, j, want.At(i, j)+x[i]*x[j])
		}
	}
	wantL, err := Cholesky(want, 1.0)
	if err != nil {
		t.Fatalf("full cholesky failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			if math.Abs(updated.At(i, j)-wantL.At(i, j)) > 1e-6 {
				t.Fatalf("mismatch at (%d,%d): got %v want %v", i, j, updated.At(i, j), wantL.At(i, j))
			}
		}
	}
}

func TestRankOneUpdateAbandonsOnDivergence(t *testing.T) {
	l := IdentityMatrix(2, 1e-9)
	for i := range l.Data {
		if l.Data[i] == 1e-9 {
			l.Data[i] = 1e-9
		}
	}
	x := []float64{1e7, 1e7}
	if _, err := RankOneUpdate(l, x, 1e-6); err == nil {
		t.Fatalf("expected rank1 update to abandon on divergence")
	}
}

func TestSanitiseVectorClampsAndReplaces(t *testing.T) {
	out, dirty := SanitiseVector([]float64{math.NaN(), 100, -100, 3, math.Inf(1)})
	if !dirty {
		t.Fatalf("expected dirty flag")
	}
	want := []float64{0, MaxFeatureMagnitude, -MaxFeatureMagnitude, 3, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestConfidenceWidthNonNegative(t *testing.T) {
	a := IdentityMatrix(3, 2.0)
	l, err := Cholesky(a, 1.0)
	if err != nil {
		t.Fatalf("cholesky failed: %v", err)
	}
	w := ConfidenceWidth(l, []float64{1, 1, 1})
	if w < 0 {
		t.Fatalf("confidence width negative: %v", w)
	}
}
