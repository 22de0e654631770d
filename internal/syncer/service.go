package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/internal/catalog"
	"github.com/stockpoolhq/stockpool-backend/internal/dispatch"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/pool"
	"github.com/stockpoolhq/stockpool-backend/internal/snapshots"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
	"github.com/stockpoolhq/stockpool-backend/pkg/metrics"
	"github.com/stockpoolhq/stockpool-backend/pkg/provider"
)

// Notification is one inventory-change event as normalized at intake.
type Notification struct {
	SourceDomain string
	EventID      string
	ItemID       string
	LocationID   string
}

// Outcome is the terminal state of one notification. Everything except
// OutcomeProcessed is a deliberate no-op, not an error.
type Outcome string

const (
	OutcomeProcessed           Outcome = "processed"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeUnknownStore        Outcome = "unknown_store"
	OutcomeStoreDisabled       Outcome = "store_disabled"
	OutcomeUnknownVariant      Outcome = "unknown_variant"
	OutcomeUntracked           Outcome = "untracked"
	OutcomeNoGroup             Outcome = "no_group"
	OutcomeConflicted          Outcome = "conflicted"
	OutcomeLocationMismatch    Outcome = "location_mismatch"
	OutcomeProviderUnavailable Outcome = "provider_unavailable"
	OutcomeLiveReadMiss        Outcome = "live_read_miss"
	OutcomeEcho                Outcome = "echo"
	OutcomeContended           Outcome = "contended"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeDirectory interface {
	GetBySourceDomain(ctx context.Context, domain string) (*models.Store, error)
	AdoptSyncLocation(ctx context.Context, storeID uuid.UUID, locationID string) error
}

type resolver interface {
	Resolve(ctx context.Context, storeID uuid.UUID, externalItemID string) (catalog.Resolution, error)
}

type idempotencyLedger interface {
	Insert(ctx context.Context, sourceDomain, eventID string) (bool, error)
}

type echoLedger interface {
	HasRecentTarget(ctx context.Context, variantID uuid.UUID, target int, since time.Time) (bool, error)
}

// Config carries the event-path tuning knobs.
type Config struct {
	SnapshotTTL time.Duration
	EchoWindow  time.Duration
}

// Service is the event processor: one notification in, at most one pool
// update and a batch of planned writes out.
type Service interface {
	Handle(ctx context.Context, n Notification) (Outcome, error)
}

type service struct {
	tx         txRunner
	stores     storeDirectory
	catalog    resolver
	groups     groups.Repository
	locker     groups.Locker
	snapshots  snapshots.Repository
	idems      idempotencyLedger
	pushes     echoLedger
	providers  provider.Factory
	dispatcher dispatch.Dispatcher
	cfg        Config
	log        *logger.Logger
	metrics    *metrics.SyncMetrics
	now        func() time.Time
}

// ServiceParams wires the event processor.
type ServiceParams struct {
	Tx         txRunner
	Stores     storeDirectory
	Catalog    resolver
	Groups     groups.Repository
	Locker     groups.Locker
	Snapshots  snapshots.Repository
	Idems      idempotencyLedger
	Pushes     echoLedger
	Providers  provider.Factory
	Dispatcher dispatch.Dispatcher
	Config     Config
	Logger     *logger.Logger
	Metrics    *metrics.SyncMetrics
}

// NewService validates the wiring and returns the event processor.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store directory required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog resolver required")
	case params.Groups == nil:
		return nil, fmt.Errorf("group repository required")
	case params.Locker == nil:
		return nil, fmt.Errorf("group locker required")
	case params.Snapshots == nil:
		return nil, fmt.Errorf("snapshot repository required")
	case params.Idems == nil:
		return nil, fmt.Errorf("idempotency ledger required")
	case params.Pushes == nil:
		return nil, fmt.Errorf("push ledger required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider factory required")
	case params.Dispatcher == nil:
		return nil, fmt.Errorf("write dispatcher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Metrics == nil:
		return nil, fmt.Errorf("sync metrics required")
	}
	cfg := params.Config
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 10 * time.Second
	}
	if cfg.EchoWindow <= 0 {
		cfg.EchoWindow = time.Minute
	}
	return &service{
		tx:         params.Tx,
		stores:     params.Stores,
		catalog:    params.Catalog,
		groups:     params.Groups,
		locker:     params.Locker,
		snapshots:  params.Snapshots,
		idems:      params.Idems,
		pushes:     params.Pushes,
		providers:  params.Providers,
		dispatcher: params.Dispatcher,
		cfg:        cfg,
		log:        params.Logger,
		metrics:    params.Metrics,
		now:        time.Now,
	}, nil
}

// Handle runs one notification through the gates to a pool update. Returns
// an error only when local storage itself fails; every provider or data
// problem degrades to a no-op outcome.
func (s *service) Handle(ctx context.Context, n Notification) (Outcome, error) {
	ctx = s.log.WithEventID(ctx, n.EventID)
	ctx = s.log.WithField(ctx, "source_domain", n.SourceDomain)

	outcome, err := s.handle(ctx, n)
	if err != nil {
		s.metrics.IncEvent("error")
		return outcome, err
	}
	s.metrics.IncEvent(string(outcome))
	if outcome != OutcomeProcessed {
		s.log.Debug(s.log.WithField(ctx, "outcome", string(outcome)), "notification dropped")
	}
	return outcome, nil
}

func (s *service) handle(ctx context.Context, n Notification) (Outcome, error) {
	// The record marks "received", not "succeeded": a crash after this
	// point drops the event and leaves repair to the reconciler.
	seen, err := s.idems.Insert(ctx, n.SourceDomain, n.EventID)
	if err != nil {
		return "", err
	}
	if seen {
		return OutcomeDuplicate, nil
	}

	store, err := s.stores.GetBySourceDomain(ctx, n.SourceDomain)
	if err != nil {
		return "", err
	}
	if store == nil {
		return OutcomeUnknownStore, nil
	}
	if !store.Enabled {
		return OutcomeStoreDisabled, nil
	}
	ctx = s.log.WithStoreID(ctx, store.ID.String())

	res, err := s.catalog.Resolve(ctx, store.ID, n.ItemID)
	if err != nil {
		return "", err
	}
	if !res.Resolved() {
		switch res.Miss {
		case catalog.MissUnknownVariant:
			return OutcomeUnknownVariant, nil
		case catalog.MissUntracked:
			return OutcomeUntracked, nil
		case catalog.MissGroupConflicted:
			return OutcomeConflicted, nil
		default:
			return OutcomeNoGroup, nil
		}
	}
	variant, group := res.Variant, res.Group
	ctx = s.log.WithVariantID(ctx, variant.ID.String())
	ctx = s.log.WithGroupID(ctx, group.ID.String())

	if store.SyncLocationID == nil {
		if err := s.stores.AdoptSyncLocation(ctx, store.ID, n.LocationID); err != nil {
			return "", err
		}
		loc := n.LocationID
		store.SyncLocationID = &loc
	} else if *store.SyncLocationID != n.LocationID {
		return OutcomeLocationMismatch, nil
	}
	syncLocation := *store.SyncLocationID

	client := s.providers.ForStore(provider.Credentials{
		BaseURL:     store.ProviderBaseURL,
		AccessToken: store.ProviderToken,
	})
	levels, err := client.ReadLevels(ctx, []string{n.ItemID})
	if err != nil {
		s.log.Error(ctx, "live read failed", err)
		return OutcomeProviderUnavailable, nil
	}
	live, ok := pickLevel(levels, n.ItemID, syncLocation)
	if !ok {
		return OutcomeLiveReadMiss, nil
	}

	now := s.now().UTC()
	echoed, err := s.pushes.HasRecentTarget(ctx, variant.ID, live.Available, now.Add(-s.cfg.EchoWindow))
	if err != nil {
		return "", err
	}
	if echoed {
		return OutcomeEcho, nil
	}

	members, err := s.groups.Members(ctx, group.ID)
	if err != nil {
		return "", err
	}
	// Provider round trips happen here, before the lock. The locked section
	// below reads only local state.
	s.refreshMemberSnapshots(ctx, members, variant.ID)

	var planned []dispatch.PlannedWrite
	outcome := OutcomeProcessed
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		acquired, err := s.locker.TryAcquire(ctx, tx, group.ID)
		if err != nil {
			return err
		}
		if !acquired {
			outcome = OutcomeContended
			return nil
		}

		txGroups := s.groups.WithTx(tx)
		txSnaps := s.snapshots.WithTx(tx)

		current, err := txGroups.FindByID(ctx, group.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status == models.GroupStatusConflicted {
			outcome = OutcomeConflicted
			return nil
		}

		prior, err := txSnaps.Get(ctx, variant.ID, syncLocation)
		if err != nil {
			return err
		}
		priorAvailable := 0
		if prior != nil {
			priorAvailable = prior.Available
		}
		delta := live.Available - priorAvailable

		if err := txSnaps.Upsert(ctx, &models.InventoryLevel{
			VariantID:     variant.ID,
			LocationID:    syncLocation,
			Available:     live.Available,
			OnHand:        live.OnHand,
			LastFetchedAt: now,
		}); err != nil {
			return err
		}

		states, err := s.memberStates(ctx, txSnaps, members, now)
		if err != nil {
			return err
		}

		bootstrap := current.LastReconciledAt == nil
		var poolValue int
		var guardFired bool
		if bootstrap {
			poolValue, guardFired = pool.Bootstrap(freshMembers(states))
		} else {
			poolValue = pool.Advance(current.PoolAvailable, delta)
		}

		planned = planWrites(states, poolValue, bootstrap && guardFired)

		if bootstrap {
			return txGroups.MarkReconciled(ctx, group.ID, poolValue, now)
		}
		return txGroups.SetPool(ctx, group.ID, poolValue, now)
	})
	if err != nil {
		return "", err
	}
	if outcome != OutcomeProcessed {
		return outcome, nil
	}

	if len(planned) > 0 {
		s.dispatcher.Dispatch(ctx, uuid.New(), models.WriteSourceSync, planned)
	}
	return OutcomeProcessed, nil
}

// memberState couples a group member with its current snapshot.
type memberState struct {
	row   groups.MemberRow
	level *models.InventoryLevel
	fresh bool
}

// eligible excludes members that cannot take part in pool math this pass.
func eligible(row groups.MemberRow) bool {
	return row.StoreEnabled && row.Tracked && row.SyncLocationID != nil
}

func (s *service) refreshMemberSnapshots(ctx context.Context, members []groups.MemberRow, triggerVariantID uuid.UUID) {
	now := s.now().UTC()
	for _, row := range members {
		if row.VariantID == triggerVariantID || !eligible(row) {
			continue
		}
		snap, err := s.snapshots.Get(ctx, row.VariantID, *row.SyncLocationID)
		if err != nil {
			s.log.Error(ctx, "snapshot lookup failed", err)
			continue
		}
		if snap != nil && snap.Fresh(now, s.cfg.SnapshotTTL) {
			continue
		}
		client := s.providers.ForStore(provider.Credentials{
			BaseURL:     row.ProviderBaseURL,
			AccessToken: row.ProviderToken,
		})
		levels, err := client.ReadLevels(ctx, []string{row.ExternalItemID})
		if err != nil {
			s.log.Error(s.log.WithVariantID(ctx, row.VariantID.String()), "member refresh failed", err)
			continue
		}
		level, ok := pickLevel(levels, row.ExternalItemID, *row.SyncLocationID)
		if !ok {
			continue
		}
		if err := s.snapshots.Upsert(ctx, &models.InventoryLevel{
			VariantID:     row.VariantID,
			LocationID:    *row.SyncLocationID,
			Available:     level.Available,
			OnHand:        level.OnHand,
			LastFetchedAt: s.now().UTC(),
		}); err != nil {
			s.log.Error(ctx, "member snapshot upsert failed", err)
		}
	}
}

func (s *service) memberStates(ctx context.Context, snaps snapshots.Repository, members []groups.MemberRow, now time.Time) ([]memberState, error) {
	ids := make([]uuid.UUID, 0, len(members))
	for _, row := range members {
		if eligible(row) {
			ids = append(ids, row.VariantID)
		}
	}
	levels, err := snaps.ListByVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	byVariant := make(map[uuid.UUID]*models.InventoryLevel, len(levels))
	for i := range levels {
		byVariant[levels[i].VariantID] = &levels[i]
	}

	states := make([]memberState, 0, len(members))
	for _, row := range members {
		if !eligible(row) {
			continue
		}
		level := byVariant[row.VariantID]
		state := memberState{row: row, level: level}
		if level != nil {
			state.fresh = level.Fresh(now, s.cfg.SnapshotTTL)
		}
		states = append(states, state)
	}
	return states, nil
}

// freshMembers feeds the bootstrap computation. Only snapshots inside the
// TTL are trusted for a from-scratch pool.
func freshMembers(states []memberState) []pool.Member {
	members := make([]pool.Member, 0, len(states))
	for _, st := range states {
		if st.level == nil || !st.fresh {
			continue
		}
		members = append(members, pool.Member{Available: st.level.Available, OnHand: st.level.OnHand})
	}
	return members
}

// planWrites plans one write per member with a trusted snapshot. A member
// whose snapshot is outside the TTL sits out this pass; its own next event
// or the reconciler brings it back in line.
func planWrites(states []memberState, poolValue int, bypassOnHand bool) []dispatch.PlannedWrite {
	var planned []dispatch.PlannedWrite
	for _, st := range states {
		if st.level == nil || !st.fresh {
			continue
		}
		target := pool.Target(poolValue, st.row.SafetyBuffer, st.level.OnHand, bypassOnHand)
		if target == st.level.Available {
			continue
		}
		planned = append(planned, dispatch.PlannedWrite{
			Member:           st.row,
			Target:           target,
			CurrentAvailable: st.level.Available,
		})
	}
	return planned
}

func pickLevel(levels []provider.Level, itemID, locationID string) (provider.Level, bool) {
	for _, level := range levels {
		if level.ItemID == itemID && level.LocationID == locationID {
			return level, true
		}
	}
	return provider.Level{}, false
}
