package stores

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// Repository manages store configuration rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, store *models.Store) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindBySourceDomain(ctx context.Context, domain string) (*models.Store, error)
	List(ctx context.Context) ([]models.Store, error)
	AdoptSyncLocation(ctx context.Context, storeID uuid.UUID, locationID string) error
	SetEnabled(ctx context.Context, storeID uuid.UUID, enabled bool) error
	SetSafetyBuffer(ctx context.Context, storeID uuid.UUID, buffer int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a store repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, store *models.Store) error {
	return r.db.WithContext(ctx).Create(store).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *repository) FindBySourceDomain(ctx context.Context, domain string) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).Where("source_domain = ?", domain).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *repository) List(ctx context.Context) ([]models.Store, error) {
	var list []models.Store
	if err := r.db.WithContext(ctx).
		Order("source_domain ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// AdoptSyncLocation records the first observed location as authoritative.
// The IS NULL guard makes the write one-time: later calls with a different
// location change nothing.
func (r *repository) AdoptSyncLocation(ctx context.Context, storeID uuid.UUID, locationID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ? AND sync_location_id IS NULL", storeID).
		Update("sync_location_id", locationID).Error
}

func (r *repository) SetEnabled(ctx context.Context, storeID uuid.UUID, enabled bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", storeID).
		Update("enabled", enabled).Error
}

func (r *repository) SetSafetyBuffer(ctx context.Context, storeID uuid.UUID, buffer int) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", storeID).
		Update("safety_buffer", buffer).Error
}
