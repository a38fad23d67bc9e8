package engine

// PipelineStage is one timed step of a single event's pipeline, recorded
// for the DecisionRecord's trace (§3 "PipelineTrace").
type PipelineStage struct {
	Stage         string
	NodeID        string
	StartMs       int64
	DurationMs    int64
	InputSummary  string
	OutputSummary string
}

// tracer accumulates PipelineStage entries across one ProcessEvent call.
// It is not safe for concurrent use — it is owned exclusively by the
// goroutine running under the user's critical section.
type tracer struct {
	startUnixMs int64
	stages      []PipelineStage
}

func newTracer(startUnixMs int64) *tracer {
	return &tracer{startUnixMs: startUnixMs}
}

func (t *tracer) record(stage, nodeID string, startMs, durationMs int64, in, out string) {
	t.stages = append(t.stages, PipelineStage{
		Stage:         stage,
		NodeID:        nodeID,
		StartMs:       startMs,
		DurationMs:    durationMs,
		InputSummary:  in,
		OutputSummary: out,
	})
}
