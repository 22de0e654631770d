package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// PushRepository manages persistence for outbound inventory writes.
type PushRepository interface {
	WithTx(tx *gorm.DB) PushRepository
	Append(ctx context.Context, entry *models.PushLogEntry) error
	HasRecentTarget(ctx context.Context, variantID uuid.UUID, target int, since time.Time) (bool, error)
	ListByVariant(ctx context.Context, variantID uuid.UUID, limit int) ([]models.PushLogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type pushRepository struct {
	db *gorm.DB
}

// NewPushRepository returns a push ledger repository bound to the provided database.
func NewPushRepository(db *gorm.DB) PushRepository {
	return &pushRepository{db: db}
}

func (r *pushRepository) WithTx(tx *gorm.DB) PushRepository {
	if tx == nil {
		return r
	}
	return &pushRepository{db: tx}
}

func (r *pushRepository) Append(ctx context.Context, entry *models.PushLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *pushRepository) HasRecentTarget(ctx context.Context, variantID uuid.UUID, target int, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PushLogEntry{}).
		Where("variant_id = ? AND target_available = ? AND created_at >= ?", variantID, target, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *pushRepository) ListByVariant(ctx context.Context, variantID uuid.UUID, limit int) ([]models.PushLogEntry, error) {
	var entries []models.PushLogEntry
	q := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *pushRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.PushLogEntry{})
	return res.RowsAffected, res.Error
}
