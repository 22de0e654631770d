package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	pushLog := `
CREATE TABLE IF NOT EXISTS push_log_entries (
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL,
  target_available INTEGER NOT NULL,
  correlation_id TEXT NOT NULL,
  write_source TEXT NOT NULL,
  created_at DATETIME
);`
	idempotency := `
CREATE TABLE IF NOT EXISTS idempotency_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source_domain TEXT NOT NULL,
  event_id TEXT NOT NULL,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_source_event
  ON idempotency_records (source_domain, event_id);`

	require.NoError(t, db.Exec(pushLog).Error)
	require.NoError(t, db.Exec(idempotency).Error)
	return db
}

func TestPushRepositoryAppendAndRecency(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewPushRepository(db)
	ctx := context.Background()

	variantID := uuid.New()
	now := time.Now().UTC()

	older := &models.PushLogEntry{
		ID:              uuid.New(),
		VariantID:       variantID,
		TargetAvailable: 12,
		CorrelationID:   uuid.New(),
		WriteSource:     models.WriteSourceSync,
		CreatedAt:       now.Add(-5 * time.Minute),
	}
	recent := &models.PushLogEntry{
		ID:              uuid.New(),
		VariantID:       variantID,
		TargetAvailable: 9,
		CorrelationID:   uuid.New(),
		WriteSource:     models.WriteSourceRecon,
		CreatedAt:       now.Add(-10 * time.Second),
	}
	require.NoError(t, repo.Append(ctx, older))
	require.NoError(t, repo.Append(ctx, recent))

	since := now.Add(-time.Minute)

	seen, err := repo.HasRecentTarget(ctx, variantID, 9, since)
	require.NoError(t, err)
	assert.True(t, seen, "write inside the window should match")

	seen, err = repo.HasRecentTarget(ctx, variantID, 12, since)
	require.NoError(t, err)
	assert.False(t, seen, "write outside the window must not match")

	seen, err = repo.HasRecentTarget(ctx, variantID, 99, since)
	require.NoError(t, err)
	assert.False(t, seen, "value never pushed must not match")

	seen, err = repo.HasRecentTarget(ctx, uuid.New(), 9, since)
	require.NoError(t, err)
	assert.False(t, seen, "other variants must not match")
}

func TestPushRepositoryListByVariant(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewPushRepository(db)
	ctx := context.Background()

	variantID := uuid.New()
	now := time.Now().UTC()
	for i, target := range []int{3, 5, 7} {
		require.NoError(t, repo.Append(ctx, &models.PushLogEntry{
			ID:              uuid.New(),
			VariantID:       variantID,
			TargetAvailable: target,
			CorrelationID:   uuid.New(),
			WriteSource:     models.WriteSourceSync,
			CreatedAt:       now.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := repo.ListByVariant(ctx, variantID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 7, entries[0].TargetAvailable, "newest first")
	assert.Equal(t, 5, entries[1].TargetAvailable)
}

func TestPushRepositoryDeleteOlderThan(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewPushRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, &models.PushLogEntry{
		ID: uuid.New(), VariantID: uuid.New(), CorrelationID: uuid.New(),
		WriteSource: models.WriteSourceSync, CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.Append(ctx, &models.PushLogEntry{
		ID: uuid.New(), VariantID: uuid.New(), CorrelationID: uuid.New(),
		WriteSource: models.WriteSourceSync, CreatedAt: now,
	}))

	removed, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestIdempotencyRepositoryInsertOnce(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	seen, err := repo.Insert(ctx, "alpha.example.com", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen, "first insert is new")

	seen, err = repo.Insert(ctx, "alpha.example.com", "evt-1")
	require.NoError(t, err)
	assert.True(t, seen, "replay of the same event is flagged")

	seen, err = repo.Insert(ctx, "beta.example.com", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen, "same event id from another store is distinct")

	ok, err := repo.Seen(ctx, "alpha.example.com", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Seen(ctx, "alpha.example.com", "evt-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyRepositoryDeleteOlderThan(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, "alpha.example.com", "evt-old")
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`UPDATE idempotency_records SET created_at = ? WHERE event_id = ?`,
		time.Now().UTC().Add(-72*time.Hour), "evt-old",
	).Error)
	_, err = repo.Insert(ctx, "alpha.example.com", "evt-new")
	require.NoError(t, err)

	removed, err := repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	seen, err := repo.Seen(ctx, "alpha.example.com", "evt-new")
	require.NoError(t, err)
	assert.True(t, seen)
}
