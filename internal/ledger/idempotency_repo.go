package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/pkg/db"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// IdempotencyRepository records every event identifier exactly once. The
// unique index on (source_domain, event_id) is the authority on whether an
// event has been processed before.
type IdempotencyRepository interface {
	WithTx(tx *gorm.DB) IdempotencyRepository
	Insert(ctx context.Context, sourceDomain, eventID string) (alreadySeen bool, err error)
	Seen(ctx context.Context, sourceDomain, eventID string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository returns an idempotency repository bound to the provided database.
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) WithTx(tx *gorm.DB) IdempotencyRepository {
	if tx == nil {
		return r
	}
	return &idempotencyRepository{db: tx}
}

func (r *idempotencyRepository) Insert(ctx context.Context, sourceDomain, eventID string) (bool, error) {
	record := &models.IdempotencyRecord{
		SourceDomain: sourceDomain,
		EventID:      eventID,
	}
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		if db.IsUniqueViolation(err, "idx_idempotency_source_event") {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (r *idempotencyRepository) Seen(ctx context.Context, sourceDomain, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("source_domain = ? AND event_id = ?", sourceDomain, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *idempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
