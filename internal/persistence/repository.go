package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"amas/internal/amaserr"
)

// SnapshotRepository is the model-snapshot table's access surface.
type SnapshotRepository interface {
	Upsert(ctx context.Context, row ModelSnapshotRow) error
	Get(ctx context.Context, userID string) (*ModelSnapshotRow, error)
}

// DecisionRepository is the decision-log table's access surface.
type DecisionRepository interface {
	Append(ctx context.Context, row DecisionRecordRow) error
	UpdateReward(ctx context.Context, id string, reward float64) error
}

// GormSnapshotRepository is the production SnapshotRepository, grounded
// on the teacher's repository-over-gorm pattern.
type GormSnapshotRepository struct {
	db *gorm.DB
}

func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// Upsert writes a full, idempotent snapshot; last writer for a user wins
// (§4.K "Writes are idempotent full snapshots").
func (r *GormSnapshotRepository) Upsert(ctx context.Context, row ModelSnapshotRow) error {
	err := r.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return fmt.Errorf("persistence: snapshot upsert failed for user %s: %w", row.UserID, amaserr.ErrPersistenceFailure)
	}
	return nil
}

func (r *GormSnapshotRepository) Get(ctx context.Context, userID string) (*ModelSnapshotRow, error) {
	var row ModelSnapshotRow
	err := r.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: snapshot read failed for user %s: %w", userID, amaserr.ErrPersistenceFailure)
	}
	return &row, nil
}

// GormDecisionRepository is the production DecisionRepository.
type GormDecisionRepository struct {
	db *gorm.DB
}

func NewGormDecisionRepository(db *gorm.DB) *GormDecisionRepository {
	return &GormDecisionRepository{db: db}
}

// Append inserts one immutable decision record (§3 "Append-only").
func (r *GormDecisionRepository) Append(ctx context.Context, row DecisionRecordRow) error {
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("persistence: decision append failed for user %s: %w", row.UserID, amaserr.ErrPersistenceFailure)
	}
	return nil
}

// UpdateReward is the sole permitted mutation on a decision record, once
// ground-truth reward becomes attributable (§3 "never updated except
// rewardLater").
func (r *GormDecisionRepository) UpdateReward(ctx context.Context, id string, reward float64) error {
	err := r.db.WithContext(ctx).
		Model(&DecisionRecordRow{}).
		Where("id = ?", id).
		Update("reward", reward).Error
	if err != nil {
		return fmt.Errorf("persistence: reward update failed for record %s: %w", id, amaserr.ErrPersistenceFailure)
	}
	return nil
}

// AutoMigrate creates/updates both tables. Called once at boot by
// cmd/migrate (§6 "Persistence contract").
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ModelSnapshotRow{}, &DecisionRecordRow{})
}
