package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLevel is the last observed external truth for one variant at one
// provider location. Stale levels must be refreshed before pool arithmetic
// may trust them.
type InventoryLevel struct {
	VariantID     uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	LocationID    string    `gorm:"column:location_id;primaryKey"`
	Available     int       `gorm:"column:available;not null;default:0"`
	OnHand        int       `gorm:"column:on_hand;not null;default:0"`
	LastFetchedAt time.Time `gorm:"column:last_fetched_at;not null"`
}

func (InventoryLevel) TableName() string { return "inventory_levels" }

// Fresh reports whether the snapshot was fetched within ttl of now.
func (l InventoryLevel) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.LastFetchedAt) <= ttl
}
