package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

const (
	defaultPushRetention        = 30 * 24 * time.Hour
	defaultIdempotencyRetention = 7 * 24 * time.Hour
)

type retentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LedgerRetentionJob prunes aged push log and idempotency rows. Both ledgers
// are append-only in the hot path; this job is their only delete path.
type LedgerRetentionJob struct {
	pushes               retentionStore
	idems                retentionStore
	log                  *logger.Logger
	pushRetention        time.Duration
	idempotencyRetention time.Duration
}

// LedgerRetentionParams configure the retention job.
type LedgerRetentionParams struct {
	Pushes               retentionStore
	Idems                retentionStore
	Logger               *logger.Logger
	PushRetention        time.Duration
	IdempotencyRetention time.Duration
}

// NewLedgerRetentionJob builds the ledger retention job.
func NewLedgerRetentionJob(params LedgerRetentionParams) (*LedgerRetentionJob, error) {
	if params.Pushes == nil {
		return nil, fmt.Errorf("push ledger required")
	}
	if params.Idems == nil {
		return nil, fmt.Errorf("idempotency ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	pushRetention := params.PushRetention
	if pushRetention <= 0 {
		pushRetention = defaultPushRetention
	}
	idemRetention := params.IdempotencyRetention
	if idemRetention <= 0 {
		idemRetention = defaultIdempotencyRetention
	}
	return &LedgerRetentionJob{
		pushes:               params.Pushes,
		idems:                params.Idems,
		log:                  params.Logger,
		pushRetention:        pushRetention,
		idempotencyRetention: idemRetention,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *LedgerRetentionJob) Name() string { return "ledger-retention" }

// Run deletes rows past their retention windows.
func (j *LedgerRetentionJob) Run(ctx context.Context) error {
	now := time.Now().UTC()

	pushRemoved, err := j.pushes.DeleteOlderThan(ctx, now.Add(-j.pushRetention))
	if err != nil {
		return fmt.Errorf("prune push ledger: %w", err)
	}
	idemRemoved, err := j.idems.DeleteOlderThan(ctx, now.Add(-j.idempotencyRetention))
	if err != nil {
		return fmt.Errorf("prune idempotency ledger: %w", err)
	}

	ctx = j.log.WithFields(ctx, map[string]any{
		"push_removed":        pushRemoved,
		"idempotency_removed": idemRemoved,
	})
	j.log.Info(ctx, "ledger retention complete")
	return nil
}
