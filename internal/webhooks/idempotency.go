package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockpoolhq/stockpool-backend/pkg/redis"
)

// IdempotencyGuard is the fast-path duplicate filter for raw webhook
// deliveries. It only debounces redelivery at the HTTP edge; the ledger in
// Postgres remains the authoritative exactly-once gate.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark marks the delivery as seen and reports whether it already was.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, sourceDomain, eventID string) (bool, error) {
	if sourceDomain == "" || eventID == "" {
		return false, errors.New("source domain and event id are required")
	}
	key := g.store.IdempotencyKey(g.scope, sourceDomain+":"+eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so a failed delivery can be retried by the sender.
func (g *IdempotencyGuard) Delete(ctx context.Context, sourceDomain, eventID string) error {
	if sourceDomain == "" || eventID == "" {
		return errors.New("source domain and event id are required")
	}
	key := g.store.IdempotencyKey(g.scope, sourceDomain+":"+eventID)
	return g.store.Del(ctx, key)
}
