package models

import "time"

// IdempotencyRecord marks one upstream event as received. Insert-once: the
// unique index is the gate, and existence means "already handled".
type IdempotencyRecord struct {
	ID           uint      `gorm:"primaryKey"`
	SourceDomain string    `gorm:"column:source_domain;not null;uniqueIndex:idx_idempotency_source_event,priority:1"`
	EventID      string    `gorm:"column:event_id;not null;uniqueIndex:idx_idempotency_source_event,priority:2"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }
