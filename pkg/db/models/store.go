package models

import (
	"time"

	"github.com/google/uuid"
)

// Store is one linked retail location whose external inventory system feeds
// the shared pool.
type Store struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	SourceDomain string    `gorm:"column:source_domain;not null;uniqueIndex"`
	Enabled      bool      `gorm:"column:enabled;not null;default:true"`
	// SyncLocationID is the one provider location whose stock is
	// authoritative for pooling. Nil until learned from the first event.
	SyncLocationID *string `gorm:"column:sync_location_id"`
	// SafetyBuffer is withheld from the propagated target for this store.
	SafetyBuffer    int       `gorm:"column:safety_buffer;not null;default:0"`
	ProviderBaseURL string    `gorm:"column:provider_base_url;not null"`
	ProviderToken   string    `gorm:"column:provider_token;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Store) TableName() string { return "stores" }
