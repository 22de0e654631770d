package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupStatus is the lifecycle state of a barcode group.
type GroupStatus string

const (
	GroupStatusActive GroupStatus = "active"
	// GroupStatusConflicted parks a group with bad data; conflicted groups
	// are skipped by all processing until manually cleared.
	GroupStatusConflicted GroupStatus = "conflicted"
)

// Group is the pooled stock unit shared by every variant carrying the same
// normalized barcode.
type Group struct {
	ID                uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	NormalizedBarcode string      `gorm:"column:normalized_barcode;not null;uniqueIndex"`
	PoolAvailable     int         `gorm:"column:pool_available;not null;default:0"`
	Status            GroupStatus `gorm:"column:status;not null;default:'active'"`
	// LastReconciledAt is nil until the first successful pool computation;
	// that nil is the bootstrap flag.
	LastReconciledAt *time.Time `gorm:"column:last_reconciled_at"`
	LastSyncedAt     *time.Time `gorm:"column:last_synced_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Group) TableName() string { return "groups" }

// GroupMembership ties a variant to its barcode group. A variant belongs to
// at most one group.
type GroupMembership struct {
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	GroupID   uuid.UUID `gorm:"column:group_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GroupMembership) TableName() string { return "group_memberships" }
