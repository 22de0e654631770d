package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/stockpoolhq/stockpool-backend/internal/dispatch"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/pool"
	"github.com/stockpoolhq/stockpool-backend/internal/snapshots"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
	"github.com/stockpoolhq/stockpool-backend/pkg/metrics"
	"github.com/stockpoolhq/stockpool-backend/pkg/provider"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Config carries the reconciliation pass tuning knobs.
type Config struct {
	Parallelism int
	ReadTimeout time.Duration
}

// Summary reports one full reconciliation pass.
type Summary struct {
	Groups     int
	Reconciled int
	Contended  int
	Skipped    int
}

// Service recomputes every active group's pool from live provider truth.
// The event path trusts deltas; this pass trusts nothing but the most
// pessimistic point-in-time read.
type Service interface {
	Run(ctx context.Context) (Summary, error)
	ReconcileGroup(ctx context.Context, groupID uuid.UUID) (bool, error)
}

type service struct {
	tx         txRunner
	groups     groups.Repository
	locker     groups.Locker
	snapshots  snapshots.Repository
	providers  provider.Factory
	dispatcher dispatch.Dispatcher
	cfg        Config
	log        *logger.Logger
	metrics    *metrics.SyncMetrics
	now        func() time.Time
}

// ServiceParams wires the batch reconciler.
type ServiceParams struct {
	Tx         txRunner
	Groups     groups.Repository
	Locker     groups.Locker
	Snapshots  snapshots.Repository
	Providers  provider.Factory
	Dispatcher dispatch.Dispatcher
	Config     Config
	Logger     *logger.Logger
	Metrics    *metrics.SyncMetrics
}

// NewService validates the wiring and returns the reconciler.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Groups == nil:
		return nil, fmt.Errorf("group repository required")
	case params.Locker == nil:
		return nil, fmt.Errorf("group locker required")
	case params.Snapshots == nil:
		return nil, fmt.Errorf("snapshot repository required")
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
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &service{
		tx:         params.Tx,
		groups:     params.Groups,
		locker:     params.Locker,
		snapshots:  params.Snapshots,
		providers:  params.Providers,
		dispatcher: params.Dispatcher,
		cfg:        cfg,
		log:        params.Logger,
		metrics:    params.Metrics,
		now:        time.Now,
	}, nil
}

// Run fans the active groups out over a bounded worker group. A group that
// fails only costs that group; the pass always visits the rest.
func (s *service) Run(ctx context.Context) (Summary, error) {
	active, err := s.groups.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}

	var (
		summary Summary
		results = make([]string, len(active))
	)
	summary.Groups = len(active)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Parallelism)
	for i, group := range active {
		i, group := i, group
		eg.Go(func() error {
			reconciled, err := s.ReconcileGroup(egCtx, group.ID)
			switch {
			case err != nil:
				s.log.Error(s.log.WithGroupID(egCtx, group.ID.String()), "group reconcile failed", err)
				results[i] = "skipped"
			case reconciled:
				results[i] = "reconciled"
			default:
				results[i] = "contended"
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, err
	}

	for _, r := range results {
		switch r {
		case "reconciled":
			summary.Reconciled++
		case "contended":
			summary.Contended++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

// ReconcileGroup runs one group through a live-read minimum recompute.
// Returns false without error when another worker holds the group.
func (s *service) ReconcileGroup(ctx context.Context, groupID uuid.UUID) (bool, error) {
	ctx = s.log.WithGroupID(ctx, groupID.String())

	rows, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return false, err
	}

	// Live reads before the lock. A member whose provider does not answer
	// is left out of both the pool math and the write plan for this pass.
	observed := s.readLiveLevels(ctx, rows)
	if len(observed) == 0 {
		return false, nil
	}

	now := s.now().UTC()
	for _, o := range observed {
		if err := s.snapshots.Upsert(ctx, &models.InventoryLevel{
			VariantID:     o.row.VariantID,
			LocationID:    *o.row.SyncLocationID,
			Available:     o.level.Available,
			OnHand:        o.level.OnHand,
			LastFetchedAt: now,
		}); err != nil {
			return false, err
		}
	}

	members := make([]pool.Member, 0, len(observed))
	for _, o := range observed {
		members = append(members, pool.Member{Available: o.level.Available, OnHand: o.level.OnHand})
	}
	poolValue := pool.Minimum(members)

	acquired := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.locker.TryAcquire(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		acquired = true

		txGroups := s.groups.WithTx(tx)
		current, err := txGroups.FindByID(ctx, groupID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != models.GroupStatusActive {
			acquired = false
			return nil
		}
		return txGroups.MarkReconciled(ctx, groupID, poolValue, now)
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	var planned []dispatch.PlannedWrite
	for _, o := range observed {
		target := pool.Target(poolValue, o.row.SafetyBuffer, o.level.OnHand, false)
		if target == o.level.Available {
			continue
		}
		planned = append(planned, dispatch.PlannedWrite{
			Member:           o.row,
			Target:           target,
			CurrentAvailable: o.level.Available,
		})
	}
	if len(planned) > 0 {
		s.dispatcher.Dispatch(ctx, uuid.New(), models.WriteSourceRecon, planned)
	}

	s.metrics.IncGroupReconciled()
	return true, nil
}

type observation struct {
	row   groups.MemberRow
	level provider.Level
}

func (s *service) readLiveLevels(ctx context.Context, rows []groups.MemberRow) []observation {
	var observed []observation
	for _, row := range rows {
		if !row.StoreEnabled || !row.Tracked || row.SyncLocationID == nil {
			continue
		}
		client := s.providers.ForStore(provider.Credentials{
			BaseURL:     row.ProviderBaseURL,
			AccessToken: row.ProviderToken,
		})
		levels, err := s.readMember(ctx, client, row.ExternalItemID)
		if err != nil {
			s.log.Error(s.log.WithVariantID(ctx, row.VariantID.String()), "live read failed", err)
			continue
		}
		for _, level := range levels {
			if level.ItemID == row.ExternalItemID && level.LocationID == *row.SyncLocationID {
				observed = append(observed, observation{row: row, level: level})
				break
			}
		}
	}
	return observed
}

// readMember scopes the per-member read timeout so the context is released
// as soon as the call returns, not when the whole pass ends.
func (s *service) readMember(ctx context.Context, client provider.Client, itemID string) ([]provider.Level, error) {
	if s.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReadTimeout)
		defer cancel()
	}
	return client.ReadLevels(ctx, []string{itemID})
}
