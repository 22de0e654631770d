package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/stockpoolhq/stockpool-backend/internal/status"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

const defaultEventDeadline = 30 * time.Second

type progressTracker interface {
	Set(ctx context.Context, sourceDomain, eventID string, entry status.Entry) error
}

// Consumer drains the inventory event subscription and feeds each
// notification through the processor. Ordering is not assumed; the processor
// treats every event as a hint to re-read the source of truth.
type Consumer struct {
	svc          Service
	subscription *pubsub.Subscriber
	tracker      progressTracker
	logg         *logger.Logger
	deadline     time.Duration
}

type ConsumerParams struct {
	Service      Service
	Subscription *pubsub.Subscriber
	Tracker      progressTracker
	Logger       *logger.Logger
	// EventDeadline caps how long one notification may hold a worker slot.
	EventDeadline time.Duration
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Service == nil:
		return nil, fmt.Errorf("sync service required")
	case params.Subscription == nil:
		return nil, fmt.Errorf("inventory subscription required")
	case params.Tracker == nil:
		return nil, fmt.Errorf("status tracker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	deadline := params.EventDeadline
	if deadline <= 0 {
		deadline = defaultEventDeadline
	}
	return &Consumer{
		svc:          params.Service,
		subscription: params.Subscription,
		tracker:      params.Tracker,
		logg:         params.Logger,
		deadline:     deadline,
	}, nil
}

// Run blocks until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	var n Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		c.logg.Error(logCtx, "failed to decode notification", err)
		return processResult{ack: true}
	}
	if n.SourceDomain == "" || n.EventID == "" {
		c.logg.Warn(logCtx, "notification missing source domain or event id")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"source_domain": n.SourceDomain,
		"event_id":      n.EventID,
	})

	if err := c.tracker.Set(ctx, n.SourceDomain, n.EventID, status.Entry{Phase: status.PhaseProcessing}); err != nil {
		c.logg.Warn(logCtx, "failed to record processing status")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	outcome, err := c.svc.Handle(runCtx, n)
	if err != nil {
		c.logg.Error(logCtx, "event processing failed", err)
		if serr := c.tracker.Set(ctx, n.SourceDomain, n.EventID, status.Entry{
			Phase:   status.PhaseFailed,
			Outcome: string(outcome),
			Detail:  err.Error(),
		}); serr != nil {
			c.logg.Warn(logCtx, "failed to record failed status")
		}
		// Redelivery retries transient failures; the idempotency ledger
		// keeps the retry from double-applying anything already done.
		return processResult{nack: true}
	}

	phase := status.PhaseDropped
	if outcome == OutcomeProcessed {
		phase = status.PhaseDone
	}
	if serr := c.tracker.Set(ctx, n.SourceDomain, n.EventID, status.Entry{
		Phase:   phase,
		Outcome: string(outcome),
	}); serr != nil {
		c.logg.Warn(logCtx, "failed to record terminal status")
	}
	return processResult{ack: true}
}
