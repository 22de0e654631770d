package models

import (
	"time"

	"github.com/google/uuid"
)

// Variant is one store's sellable item, linked to its group by barcode.
// Catalog sync owns these rows; the pool engine only reads them.
type Variant struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID        uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:idx_variants_store_item,priority:1"`
	ExternalItemID string    `gorm:"column:external_item_id;not null;uniqueIndex:idx_variants_store_item,priority:2"`
	Barcode        string    `gorm:"column:barcode;not null"`
	// NormalizedBarcode is nil when the raw barcode normalizes to nothing,
	// which leaves the variant outside any group.
	NormalizedBarcode *string   `gorm:"column:normalized_barcode;index"`
	Tracked           bool      `gorm:"column:tracked;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Variant) TableName() string { return "variants" }
