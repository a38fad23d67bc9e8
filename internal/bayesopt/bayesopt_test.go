package bayesopt

import "testing"

func TestGPPredictFallsBackToPriorWithNoObservations(t *testing.T) {
	gp := NewGP(1.0, 2.0, 1e-3)
	mean, std := gp.Predict([]float64{0.5, 0.5})
	if mean != 0 {
		t.Fatalf("expected zero prior mean, got %v", mean)
	}
	if std <= 0 {
		t.Fatalf("expected positive prior std, got %v", std)
	}
}

func TestOptimizerRecordsBestObservation(t *testing.T) {
	bounds := []Bound{{Lo: 0, Hi: 1}, {Lo: 0, Hi: 1}}
	o := NewOptimizer(bounds, 1.5, 7)

	o.RecordEvaluation(Observation{Params: []float64{0.2, 0.2}, Value: 0.3})
	o.RecordEvaluation(Observation{Params: []float64{0.8, 0.8}, Value: 0.9})
	o.RecordEvaluation(Observation{Params: []float64{0.5, 0.5}, Value: 0.1})

	best := o.GetBest()
	if best == nil || best.Value != 0.9 {
		t.Fatalf("expected best value 0.9, got %+v", best)
	}
}

func TestSuggestNextStaysWithinBounds(t *testing.T) {
	bounds := []Bound{{Lo: -1, Hi: 1}, {Lo: 0, Hi: 5}}
	o := NewOptimizer(bounds, 2.0, 3)
	o.RecordEvaluation(Observation{Params: []float64{0, 2.5}, Value: 0.5})

	x := o.SuggestNext()
	if len(x) != 2 {
		t.Fatalf("want 2 dims, got %d", len(x))
	}
	if x[0] < -1 || x[0] > 1 || x[1] < 0 || x[1] > 5 {
		t.Fatalf("suggestion out of bounds: %+v", x)
	}
}

func TestSuggestBatchReturnsKPointsWithoutMutatingRealHistory(t *testing.T) {
	bounds := []Bound{{Lo: 0, Hi: 1}}
	o := NewOptimizer(bounds, 1.0, 11)
	o.RecordEvaluation(Observation{Params: []float64{0.4}, Value: 0.2})

	before := len(o.gp.obs)
	batch := o.SuggestBatch(3)
	after := len(o.gp.obs)

	if len(batch) != 3 {
		t.Fatalf("want 3 suggestions, got %d", len(batch))
	}
	if before != after {
		t.Fatalf("suggest batch must not mutate the real observation history: before=%d after=%d", before, after)
	}
}
