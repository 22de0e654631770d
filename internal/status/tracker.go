package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stockpoolhq/stockpool-backend/pkg/redis"
)

const defaultTTL = 30 * time.Minute

// Phase is the coarse position of one sync run.
type Phase string

const (
	PhaseReceived   Phase = "received"
	PhaseProcessing Phase = "processing"
	PhaseDone       Phase = "done"
	PhaseDropped    Phase = "dropped"
	PhaseFailed     Phase = "failed"
)

// Entry is one sync run's externally visible progress.
type Entry struct {
	Phase     Phase     `json:"phase"`
	Outcome   string    `json:"outcome,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker is a TTL-evicted progress map keyed by (source domain, event id).
// Entries expire on their own; nothing holds a process-wide registry.
type Tracker struct {
	store redis.StatusStore
	ttl   time.Duration
}

// NewTracker builds a progress tracker on the shared redis client.
func NewTracker(store redis.StatusStore, ttl time.Duration) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("status store required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Tracker{store: store, ttl: ttl}, nil
}

// Set records the current phase for one event, refreshing its TTL.
func (t *Tracker) Set(ctx context.Context, sourceDomain, eventID string, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}
	return t.store.Set(ctx, t.store.StatusKey(sourceDomain, eventID), payload, t.ttl)
}

// Get returns the entry for one event, or nil when it never existed or has
// already expired.
func (t *Tracker) Get(ctx context.Context, sourceDomain, eventID string) (*Entry, error) {
	raw, err := t.store.Get(ctx, t.store.StatusKey(sourceDomain, eventID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode status entry: %w", err)
	}
	return &entry, nil
}
