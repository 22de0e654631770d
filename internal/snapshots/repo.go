package snapshots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// Repository manages the last observed inventory level per variant and
// location. Writes go through Upsert so concurrent refreshes never race on
// insert-vs-update.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, variantID uuid.UUID, locationID string) (*models.InventoryLevel, error)
	ListByVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.InventoryLevel, error)
	Upsert(ctx context.Context, level *models.InventoryLevel) error
	SetAvailable(ctx context.Context, variantID uuid.UUID, locationID string, available int, fetchedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Get returns nil when no snapshot exists for the variant at the location.
func (r *repository) Get(ctx context.Context, variantID uuid.UUID, locationID string) (*models.InventoryLevel, error) {
	var level models.InventoryLevel
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		First(&level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &level, nil
}

func (r *repository) ListByVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.InventoryLevel, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var levels []models.InventoryLevel
	if err := r.db.WithContext(ctx).
		Where("variant_id IN ?", variantIDs).
		Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *repository) Upsert(ctx context.Context, level *models.InventoryLevel) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "variant_id"}, {Name: "location_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"available", "on_hand", "last_fetched_at",
			}),
		}).
		Create(level).Error
}

// SetAvailable adjusts only the available figure, keeping on_hand as last
// observed. Used after a successful outbound write so the snapshot tracks
// what the provider now holds.
func (r *repository) SetAvailable(ctx context.Context, variantID uuid.UUID, locationID string, available int, fetchedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryLevel{}).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		Updates(map[string]interface{}{
			"available":       available,
			"last_fetched_at": fetchedAt,
		}).Error
}
