package groups

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// MemberRow is one group member joined with its owning store. Flattened so a
// single query hands the callers everything pool arithmetic and dispatch need.
type MemberRow struct {
	VariantID       uuid.UUID `gorm:"column:variant_id"`
	ExternalItemID  string    `gorm:"column:external_item_id"`
	Barcode         string    `gorm:"column:barcode"`
	Tracked         bool      `gorm:"column:tracked"`
	StoreID         uuid.UUID `gorm:"column:store_id"`
	SourceDomain    string    `gorm:"column:source_domain"`
	StoreEnabled    bool      `gorm:"column:store_enabled"`
	SyncLocationID  *string   `gorm:"column:sync_location_id"`
	SafetyBuffer    int       `gorm:"column:safety_buffer"`
	ProviderBaseURL string    `gorm:"column:provider_base_url"`
	ProviderToken   string    `gorm:"column:provider_token"`
}

// Repository manages barcode groups and their memberships.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, group *models.Group) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	FindByNormalizedBarcode(ctx context.Context, barcode string) (*models.Group, error)
	ListActive(ctx context.Context) ([]models.Group, error)
	Members(ctx context.Context, groupID uuid.UUID) ([]MemberRow, error)
	AddMember(ctx context.Context, membership *models.GroupMembership) error
	MembershipForVariant(ctx context.Context, variantID uuid.UUID) (*models.GroupMembership, error)
	SetPool(ctx context.Context, groupID uuid.UUID, pool int, syncedAt time.Time) error
	MarkReconciled(ctx context.Context, groupID uuid.UUID, pool int, at time.Time) error
	MarkConflicted(ctx context.Context, groupID uuid.UUID) error
	ClearConflicted(ctx context.Context, groupID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a group repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindByNormalizedBarcode(ctx context.Context, barcode string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("normalized_barcode = ?", barcode).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.GroupStatusActive).
		Order("normalized_barcode ASC").
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repository) Members(ctx context.Context, groupID uuid.UUID) ([]MemberRow, error) {
	var rows []MemberRow
	err := r.db.WithContext(ctx).Raw(`
SELECT v.id AS variant_id,
       v.external_item_id,
       v.barcode,
       v.tracked,
       s.id AS store_id,
       s.source_domain,
       s.enabled AS store_enabled,
       s.sync_location_id,
       s.safety_buffer,
       s.provider_base_url,
       s.provider_token
FROM group_memberships gm
JOIN variants v ON v.id = gm.variant_id
JOIN stores s ON s.id = v.store_id
WHERE gm.group_id = ?
ORDER BY s.source_domain ASC`, groupID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) AddMember(ctx context.Context, membership *models.GroupMembership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *repository) MembershipForVariant(ctx context.Context, variantID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

func (r *repository) SetPool(ctx context.Context, groupID uuid.UUID, pool int, syncedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"pool_available": pool,
			"last_synced_at": syncedAt,
		}).Error
}

// MarkReconciled stamps a full recompute of the pool. A non-nil
// last_reconciled_at is what moves a group out of bootstrap.
func (r *repository) MarkReconciled(ctx context.Context, groupID uuid.UUID, pool int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"pool_available":     pool,
			"last_reconciled_at": at,
			"last_synced_at":     at,
		}).Error
}

func (r *repository) MarkConflicted(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", groupID).
		Update("status", models.GroupStatusConflicted).Error
}

// ClearConflicted reactivates a frozen group. The reconciled stamp is
// cleared too, so the next event bootstraps the pool from live state
// instead of trusting a value that drifted while the group sat out.
func (r *repository) ClearConflicted(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ? AND status = ?", groupID, models.GroupStatusConflicted).
		Updates(map[string]interface{}{
			"status":             models.GroupStatusActive,
			"last_reconciled_at": nil,
		}).Error
}
