package groups

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Locker serializes concurrent work on a single group. TryAcquire never
// blocks; callers that lose the race drop the work and rely on the next
// trigger or the reconciler to converge.
type Locker interface {
	TryAcquire(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (bool, error)
}

// AdvisoryLocker takes a Postgres transaction-scoped advisory lock keyed on
// the group id. The lock releases itself on commit or rollback, so there is
// no unlock path to forget.
type AdvisoryLocker struct{}

// NewAdvisoryLocker returns the Postgres-backed group locker.
func NewAdvisoryLocker() *AdvisoryLocker {
	return &AdvisoryLocker{}
}

func (l *AdvisoryLocker) TryAcquire(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (bool, error) {
	var acquired bool
	err := tx.WithContext(ctx).
		Raw("SELECT pg_try_advisory_xact_lock(?)", lockKey(groupID)).
		Scan(&acquired).Error
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// lockKey folds the group id into the signed 64-bit key space advisory locks
// use. FNV-1a keeps the mapping stable across processes.
func lockKey(groupID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(groupID[:])
	return int64(h.Sum64())
}
