package models

import (
	"time"

	"github.com/google/uuid"
)

// WriteSource tags which pass produced an external write.
type WriteSource string

const (
	WriteSourceSync  WriteSource = "sync"
	WriteSourceRecon WriteSource = "recon"
)

// PushLogEntry records one value this system wrote to a provider. Append
// only; read for echo suppression and audit.
type PushLogEntry struct {
	ID              uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID       uuid.UUID   `gorm:"column:variant_id;type:uuid;not null;index:idx_push_log_variant_time,priority:1"`
	TargetAvailable int         `gorm:"column:target_available;not null"`
	CorrelationID   uuid.UUID   `gorm:"column:correlation_id;type:uuid;not null"`
	WriteSource     WriteSource `gorm:"column:write_source;not null"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime;index:idx_push_log_variant_time,priority:2"`
}

func (PushLogEntry) TableName() string { return "push_log_entries" }
