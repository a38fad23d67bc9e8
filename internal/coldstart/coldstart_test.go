package coldstart

import (
	"testing"

	"amas/internal/action"
)

func TestColdPathClassifiesFastAndSettlesByEighthEvent(t *testing.T) {
	s := New(DefaultPriors)

	for i := 0; i < 3 && s.Phase == PhaseClassify; i++ {
		s.RecordProbe(1.0, 0.1, 1100, 0.1)
	}

	if p := s.CachedPosterior[TypeFast]; p < 0.6 {
		t.Fatalf("expected P(fast) >= 0.6, got %v (posterior=%+v)", p, s.CachedPosterior)
	}
	if s.SettledStrategy == nil {
		t.Fatalf("expected a settled strategy after early classification")
	}
	want := SettledStrategies[TypeFast]
	if *s.SettledStrategy != want {
		t.Fatalf("settled strategy mismatch: got %+v want %+v", *s.SettledStrategy, want)
	}

	for s.UpdateCount < 8 {
		s.AdvanceUpdateCount()
	}
	if s.Phase != PhaseNormal {
		t.Fatalf("expected phase normal after 8 updates, got %s", s.Phase)
	}
}

func TestNearestActionProjectsToClosestCatalogueEntry(t *testing.T) {
	s := New(DefaultPriors)
	got := s.NearestAction(action.ACTION_SPACE)
	found := false
	for _, a := range action.ACTION_SPACE {
		if a == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("nearest action must come from the supplied catalogue")
	}
}

func TestSafetyNetReclassifiesIfSettledStrategyMissingAtGate(t *testing.T) {
	s := New(DefaultPriors)
	s.ProbeIndex = len(ProbeActions)
	s.Phase = PhaseExplore
	s.SettledStrategy = nil

	for s.UpdateCount < 8 {
		s.AdvanceUpdateCount()
	}
	if s.Phase != PhaseNormal || s.SettledStrategy == nil {
		t.Fatalf("expected safety-net classification before entering normal, got phase=%s settled=%v", s.Phase, s.SettledStrategy)
	}
}
