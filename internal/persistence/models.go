// Package persistence owns the two durable stores the engine writes to
// off the synchronous path — model snapshots and the decision log — plus
// the MPSC queues and Redis-backed read caches that sit in front of them
// (§4.K).
package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelSnapshotRow is the `model_snapshots` table: one row per user,
// last-writer-wins, idempotent full replace (§6 "Persistence contract").
type ModelSnapshotRow struct {
	UserID    string `gorm:"primaryKey;column:user_id"`
	Payload   []byte `gorm:"column:payload"`
	Version   int    `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ModelSnapshotRow) TableName() string { return "model_snapshots" }

// DecisionRecordRow is one append-only row in the decision log. Reward is
// a decimal rather than a bare float so the persisted value can't drift
// from the engine's own clamped [-1,1] computation under
// driver-level float rounding (§3 "DecisionRecord").
type DecisionRecordRow struct {
	ID             string           `gorm:"primaryKey;column:id"`
	UserID         string           `gorm:"column:user_id;index:idx_user_ts"`
	SessionID      string           `gorm:"column:session_id;index:idx_session"`
	Timestamp      time.Time        `gorm:"column:ts;index:idx_user_ts"`
	Seq            int64            `gorm:"column:seq"`
	Source         string           `gorm:"column:source;index:idx_source"`
	Phase          string           `gorm:"column:phase"`
	WeightsJSON    string           `gorm:"column:weights;type:jsonb"`
	VotesJSON      string           `gorm:"column:votes;type:jsonb"`
	ActionJSON     string           `gorm:"column:action;type:jsonb"`
	Confidence     decimal.Decimal  `gorm:"column:confidence;type:numeric"`
	Reward         *decimal.Decimal `gorm:"column:reward;type:numeric"`
	TraceJSON      string           `gorm:"column:trace;type:jsonb"`
	DurationMs     int              `gorm:"column:duration_ms"`
}

func (DecisionRecordRow) TableName() string { return "decision_records" }
