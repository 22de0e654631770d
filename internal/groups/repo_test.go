package groups

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

func setupGroupsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS stores (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  source_domain TEXT NOT NULL UNIQUE,
  enabled INTEGER NOT NULL DEFAULT 1,
  sync_location_id TEXT,
  safety_buffer INTEGER NOT NULL DEFAULT 0,
  provider_base_url TEXT NOT NULL DEFAULT '',
  provider_token TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS variants (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  external_item_id TEXT NOT NULL,
  barcode TEXT NOT NULL,
  normalized_barcode TEXT,
  tracked INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS groups (
  id TEXT PRIMARY KEY,
  normalized_barcode TEXT NOT NULL UNIQUE,
  pool_available INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'active',
  last_reconciled_at DATETIME,
  last_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS group_memberships (
  variant_id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedStore(t *testing.T, db *gorm.DB, domain string, buffer int) *models.Store {
	t.Helper()
	loc := "loc-" + domain
	store := &models.Store{
		ID:             uuid.New(),
		Name:           domain,
		SourceDomain:   domain,
		Enabled:        true,
		SyncLocationID: &loc,
		SafetyBuffer:   buffer,
	}
	require.NoError(t, db.Create(store).Error)
	return store
}

func seedVariant(t *testing.T, db *gorm.DB, store *models.Store, itemID, barcode string) *models.Variant {
	t.Helper()
	normalized := barcode
	variant := &models.Variant{
		ID:                uuid.New(),
		StoreID:           store.ID,
		ExternalItemID:    itemID,
		Barcode:           barcode,
		NormalizedBarcode: &normalized,
		Tracked:           true,
	}
	require.NoError(t, db.Create(variant).Error)
	return variant
}

func TestRepositoryFindByNormalizedBarcode(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "850012345678", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))

	found, err := repo.FindByNormalizedBarcode(ctx, "850012345678")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, group.ID, found.ID)
	assert.Nil(t, found.LastReconciledAt, "new groups start in bootstrap")

	miss, err := repo.FindByNormalizedBarcode(ctx, "000000000000")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestRepositoryMembersJoinsVariantAndStore(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-1", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))

	alpha := seedStore(t, db, "alpha.example.com", 2)
	beta := seedStore(t, db, "beta.example.com", 0)
	va := seedVariant(t, db, alpha, "item-a", "bc-1")
	vb := seedVariant(t, db, beta, "item-b", "bc-1")
	require.NoError(t, repo.AddMember(ctx, &models.GroupMembership{VariantID: va.ID, GroupID: group.ID}))
	require.NoError(t, repo.AddMember(ctx, &models.GroupMembership{VariantID: vb.ID, GroupID: group.ID}))

	rows, err := repo.Members(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "alpha.example.com", rows[0].SourceDomain, "ordered by domain")
	assert.Equal(t, va.ID, rows[0].VariantID)
	assert.Equal(t, "item-a", rows[0].ExternalItemID)
	assert.Equal(t, 2, rows[0].SafetyBuffer)
	require.NotNil(t, rows[0].SyncLocationID)
	assert.Equal(t, "loc-alpha.example.com", *rows[0].SyncLocationID)
	assert.True(t, rows[0].StoreEnabled)

	assert.Equal(t, "beta.example.com", rows[1].SourceDomain)
	assert.Equal(t, vb.ID, rows[1].VariantID)
}

func TestRepositoryMembershipForVariant(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-2", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))
	store := seedStore(t, db, "gamma.example.com", 0)
	variant := seedVariant(t, db, store, "item-c", "bc-2")
	require.NoError(t, repo.AddMember(ctx, &models.GroupMembership{VariantID: variant.ID, GroupID: group.ID}))

	membership, err := repo.MembershipForVariant(ctx, variant.ID)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.Equal(t, group.ID, membership.GroupID)

	none, err := repo.MembershipForVariant(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepositorySetPoolKeepsBootstrapFlag(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-3", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SetPool(ctx, group.ID, 7, now))

	got, err := repo.FindByID(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.PoolAvailable)
	assert.Nil(t, got.LastReconciledAt, "SetPool must not clear the bootstrap flag")
	require.NotNil(t, got.LastSyncedAt)

	require.NoError(t, repo.MarkReconciled(ctx, group.ID, 5, now))
	got, err = repo.FindByID(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.PoolAvailable)
	require.NotNil(t, got.LastReconciledAt, "MarkReconciled ends bootstrap")
}

func TestRepositoryMarkConflictedExcludesFromActive(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	good := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-good", Status: models.GroupStatusActive}
	bad := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-bad", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, good))
	require.NoError(t, repo.Create(ctx, bad))

	require.NoError(t, repo.MarkConflicted(ctx, bad.ID))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, good.ID, active[0].ID)

	got, err := repo.FindByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusConflicted, got.Status)
}

func TestRepositoryClearConflictedReactivatesAndResetsBootstrap(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-frozen", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkReconciled(ctx, group.ID, 5, now))
	require.NoError(t, repo.MarkConflicted(ctx, group.ID))

	require.NoError(t, repo.ClearConflicted(ctx, group.ID))

	got, err := repo.FindByID(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusActive, got.Status)
	assert.Nil(t, got.LastReconciledAt, "clearing must force a fresh bootstrap")

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, group.ID, active[0].ID)
}

func TestRepositoryClearConflictedIgnoresActiveGroups(t *testing.T) {
	db := setupGroupsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	group := &models.Group{ID: uuid.New(), NormalizedBarcode: "bc-live", Status: models.GroupStatusActive}
	require.NoError(t, repo.Create(ctx, group))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkReconciled(ctx, group.ID, 5, now))

	require.NoError(t, repo.ClearConflicted(ctx, group.ID))

	got, err := repo.FindByID(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastReconciledAt, "an already active group keeps its reconciled stamp")
}
