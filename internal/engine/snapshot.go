package engine

import (
	"encoding/json"
	"fmt"

	"amas/internal/amaserr"
	"amas/internal/coldstart"
	"amas/internal/ensemble"
	"amas/internal/learning"
	"amas/internal/modeling"
)

// SnapshotVersion is the current on-disk schema version for a serialised
// ModelBundle. Bumped whenever a field is added/removed/retyped below.
const SnapshotVersion = 1

// bundleSnapshot is the full restorable state of one user's ModelBundle
// (§2 "on eviction... serialised to persistence", §3 "ModelBundle").
type bundleSnapshot struct {
	Version        int
	Modeling       modeling.BundleSnapshot
	EnsembleWeights ensemble.Weights
	ColdStart      coldstart.State
	LinUCB         learning.LinUCBSnapshot
	Thompson       learning.ThompsonSnapshot
	ACTR           learning.ACTRSnapshot
	ErrorRateEMA   float64
}

// marshalBundle captures the full state of a ModelBundle as a
// version-tagged payload.
func marshalBundle(b *ModelBundle) ([]byte, error) {
	snap := bundleSnapshot{
		Version:         SnapshotVersion,
		Modeling:        b.Bundle.Snapshot(),
		EnsembleWeights: b.Ensemble.Weights,
		ColdStart:       *b.Ensemble.ColdStart,
		ErrorRateEMA:    b.ErrorRateEMA,
	}
	if b.LinUCB != nil {
		snap.LinUCB = b.LinUCB.Snapshot()
	}
	if b.Thompson != nil {
		snap.Thompson = b.Thompson.Snapshot()
	}
	if b.ACTR != nil {
		snap.ACTR = b.ACTR.Snapshot()
	}
	return json.Marshal(snap)
}

// unmarshalBundle restores a ModelBundle from a version-tagged payload,
// rejecting downgrades explicitly (§9 open question (iii): "the source
// contains a dimension-migration path but no downgrade — reject
// downgrades explicitly"). A downgrade here means a stored schema
// version newer than the engine build currently restoring it — the
// running code has no way to know how to interpret fields it has never
// seen, so it must refuse rather than guess.
func unmarshalBundle(b *ModelBundle, payload []byte) error {
	var snap bundleSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("engine: snapshot payload malformed: %w", amaserr.ErrStateCorruption)
	}
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("engine: refusing to restore snapshot version %d into engine version %d (downgrade): %w",
			snap.Version, SnapshotVersion, amaserr.ErrStateCorruption)
	}

	b.Bundle.Restore(snap.Modeling)
	b.Ensemble.RestoreWeights(snap.EnsembleWeights)
	*b.Ensemble.ColdStart = snap.ColdStart
	if b.LinUCB != nil {
		b.LinUCB.Restore(snap.LinUCB)
	}
	if b.Thompson != nil {
		b.Thompson.Restore(snap.Thompson)
	}
	if b.ACTR != nil {
		b.ACTR.Restore(snap.ACTR)
	}
	b.ErrorRateEMA = snap.ErrorRateEMA
	return nil
}
