package webhooks

import (
	"context"
	"encoding/json"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/stockpoolhq/stockpool-backend/internal/status"
	"github.com/stockpoolhq/stockpool-backend/internal/syncer"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

type statusTracker interface {
	Set(ctx context.Context, sourceDomain, eventID string, entry status.Entry) error
}

// IntakeService hands validated inventory notifications to the event
// pipeline. The HTTP edge stays thin: every business decision happens in the
// worker that consumes the topic.
type IntakeService struct {
	publisher publisher
	tracker   statusTracker
	logg      *logger.Logger
}

type IntakeParams struct {
	Publisher publisher
	Tracker   statusTracker
	Logger    *logger.Logger
}

func NewIntakeService(params IntakeParams) (*IntakeService, error) {
	switch {
	case params.Publisher == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event publisher required")
	case params.Tracker == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status tracker required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &IntakeService{
		publisher: params.Publisher,
		tracker:   params.Tracker,
		logg:      params.Logger,
	}, nil
}

// Accept publishes the notification and records it as received. Publish is
// confirmed synchronously so the sender's retry loop still covers broker
// outages.
func (s *IntakeService) Accept(ctx context.Context, n syncer.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification")
	}

	res := s.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source_domain": n.SourceDomain,
			"event_id":      n.EventID,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish inventory event")
	}

	if err := s.tracker.Set(ctx, n.SourceDomain, n.EventID, status.Entry{Phase: status.PhaseReceived}); err != nil {
		// Tracking is best effort; the event is already on the topic.
		s.logg.Warn(s.logg.WithEventID(ctx, n.EventID), "failed to record received status")
	}
	return nil
}
