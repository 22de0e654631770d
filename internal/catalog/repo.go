package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// Repository manages variant rows. Catalog sync writes them; the pool engine
// only reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	FindByStoreItem(ctx context.Context, storeID uuid.UUID, externalItemID string) (*models.Variant, error)
	Upsert(ctx context.Context, variant *models.Variant) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a variant repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindByStoreItem(ctx context.Context, storeID uuid.UUID, externalItemID string) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND external_item_id = ?", storeID, externalItemID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &variant, nil
}

func (r *repository) Upsert(ctx context.Context, variant *models.Variant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "store_id"}, {Name: "external_item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"barcode", "normalized_barcode", "tracked", "updated_at",
			}),
		}).
		Create(variant).Error
}
