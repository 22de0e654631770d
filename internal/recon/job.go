package recon

import (
	"context"
	"fmt"

	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

// Job adapts the reconciler to the cron runner.
type Job struct {
	svc Service
	log *logger.Logger
}

// NewJob builds the scheduled reconciliation job.
func NewJob(svc Service, log *logger.Logger) (*Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("recon service required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Job{svc: svc, log: log}, nil
}

// Name identifies the job in logs and metrics.
func (j *Job) Name() string { return "pool-reconcile" }

// Run executes one full reconciliation pass.
func (j *Job) Run(ctx context.Context) error {
	summary, err := j.svc.Run(ctx)
	if err != nil {
		return err
	}
	ctx = j.log.WithFields(ctx, map[string]any{
		"groups":     summary.Groups,
		"reconciled": summary.Reconciled,
		"contended":  summary.Contended,
		"skipped":    summary.Skipped,
	})
	j.log.Info(ctx, "reconciliation pass complete")
	return nil
}
