package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
	"github.com/stockpoolhq/stockpool-backend/pkg/metrics"
	"github.com/stockpoolhq/stockpool-backend/pkg/provider"
)

// PlannedWrite is one member retarget decided under the group lock. The
// dispatcher turns it into a provider delta outside any lock or transaction.
type PlannedWrite struct {
	Member           groups.MemberRow
	Target           int
	CurrentAvailable int
}

// Result summarizes one dispatch pass.
type Result struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

type pushLedger interface {
	Append(ctx context.Context, entry *models.PushLogEntry) error
}

type snapshotWriter interface {
	SetAvailable(ctx context.Context, variantID uuid.UUID, locationID string, available int, fetchedAt time.Time) error
}

// Dispatcher executes planned writes against store providers.
type Dispatcher interface {
	Dispatch(ctx context.Context, correlationID uuid.UUID, source models.WriteSource, writes []PlannedWrite) Result
}

type dispatcher struct {
	providers provider.Factory
	pushes    pushLedger
	snapshots snapshotWriter
	log       *logger.Logger
	metrics   *metrics.SyncMetrics
	now       func() time.Time
}

// NewDispatcher builds a write dispatcher backed by the provided stack.
func NewDispatcher(providers provider.Factory, pushes pushLedger, snapshots snapshotWriter, log *logger.Logger, m *metrics.SyncMetrics) (Dispatcher, error) {
	if providers == nil {
		return nil, fmt.Errorf("provider factory required")
	}
	if pushes == nil {
		return nil, fmt.Errorf("push ledger required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot writer required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if m == nil {
		return nil, fmt.Errorf("sync metrics required")
	}
	return &dispatcher{
		providers: providers,
		pushes:    pushes,
		snapshots: snapshots,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Dispatch walks the planned writes in order. One member's failure is logged
// and counted, never propagated: the remaining writes still run, and drift
// from a failed write is left to the next event or reconciler pass.
func (d *dispatcher) Dispatch(ctx context.Context, correlationID uuid.UUID, source models.WriteSource, writes []PlannedWrite) Result {
	ctx = d.log.WithCorrelationID(ctx, correlationID.String())

	var result Result
	for _, write := range writes {
		delta := write.Target - write.CurrentAvailable
		if delta == 0 {
			result.Skipped++
			continue
		}
		if write.Member.SyncLocationID == nil {
			result.Skipped++
			continue
		}
		result.Attempted++

		wctx := d.log.WithFields(ctx, map[string]any{
			"variant_id": write.Member.VariantID.String(),
			"store":      write.Member.SourceDomain,
			"target":     write.Target,
			"delta":      delta,
		})

		client := d.providers.ForStore(provider.Credentials{
			BaseURL:     write.Member.ProviderBaseURL,
			AccessToken: write.Member.ProviderToken,
		})
		// Event-path writes trust the just-read current value and apply a
		// delta. Reconciliation writes do not trust anything read earlier
		// and set the target outright.
		var writeErr error
		if source == models.WriteSourceRecon {
			writeErr = client.WriteAbsolute(ctx, write.Member.ExternalItemID, *write.Member.SyncLocationID, write.Target)
		} else {
			writeErr = client.WriteDelta(ctx, write.Member.ExternalItemID, *write.Member.SyncLocationID, delta)
		}
		if writeErr != nil {
			d.log.Error(wctx, "inventory write failed", writeErr)
			d.metrics.IncWrite(string(source), "failure")
			result.Failed++
			continue
		}

		now := d.now().UTC()
		if err := d.pushes.Append(ctx, &models.PushLogEntry{
			ID:              uuid.New(),
			VariantID:       write.Member.VariantID,
			TargetAvailable: write.Target,
			CorrelationID:   correlationID,
			WriteSource:     source,
			CreatedAt:       now,
		}); err != nil {
			d.log.Error(wctx, "push ledger append failed", err)
		}
		if err := d.snapshots.SetAvailable(ctx, write.Member.VariantID, *write.Member.SyncLocationID, write.Target, now); err != nil {
			d.log.Error(wctx, "snapshot update after write failed", err)
		}

		d.metrics.IncWrite(string(source), "success")
		result.Succeeded++
	}
	return result
}
