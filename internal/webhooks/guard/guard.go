// Package guard is the redis duplicate filter in front of the ledger. It
// absorbs the common concurrent-redelivery burst cheaply; the ledger row
// stays the source of truth.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukaskovac/motormarkt-backend/pkg/redis"
)

type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func New(store redis.IdempotencyStore, ttl time.Duration, scope string) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the event id was already marked within the
// TTL window.
func (g *Guard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so the provider's redelivery can pass the guard
// after a processing failure.
func (g *Guard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}
