package modeling

import (
	"reflect"
	"testing"

	"amas/internal/perception"
)

func TestAttentionModelStaysWithinBounds(t *testing.T) {
	m := NewAttentionModel()
	fv := perception.FeatureVector{ResponseTimeCV: 2, SwitchCountCV: 3, FocusLossCV: 1, DwellTimeCV: 0.1}
	for i := 0; i < 20; i++ {
		m.Update(fv)
	}
	if v := m.Value(); v < 0 || v > 1 {
		t.Fatalf("attention out of bounds: %v", v)
	}
}

func TestFatigueAccumulatesUnderLoad(t *testing.T) {
	m := NewFatigueModel()
	fv := perception.FeatureVector{InteractionDensity: 1.0}
	var last float64
	now := int64(1000)
	for i := 0; i < 10; i++ {
		last = m.Update(fv, now)
		now += 1000
	}
	if last <= 0 {
		t.Fatalf("expected fatigue to accumulate under sustained load, got %v", last)
	}
	if last > 1 {
		t.Fatalf("fatigue exceeded upper bound: %v", last)
	}
}

func TestMotivationBoundedAndStreakRewarded(t *testing.T) {
	m := NewMotivationModel()
	var v float64
	for i := 0; i < 15; i++ {
		v = m.Update(true, 0)
	}
	if v < -1 || v > 1 {
		t.Fatalf("motivation out of bounds: %v", v)
	}
	if v <= 0 {
		t.Fatalf("expected positive motivation after a correctness streak, got %v", v)
	}
}

func TestBundleSnapshotRestoreRoundTrips(t *testing.T) {
	b := NewBundle()
	fv := perception.FeatureVector{ResponseTimeMs: 1200, IsCorrect: true, InteractionDensity: 0.4}
	b.Update(fv, 1000)
	b.Update(fv, 2000)

	snap := b.Snapshot()
	restored := NewBundle()
	restored.Restore(snap)

	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Fatalf("restore did not reproduce snapshot: got %+v want %+v", restored.Snapshot(), snap)
	}
}
