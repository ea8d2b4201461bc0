package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/redis"
)

// IdempotencyGuard short-circuits redeliveries of the same order state. The
// database state machine stays authoritative; the guard only saves work.
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

// DeliveryKey identifies one order state. Pending and settlement of the same
// order are different deliveries.
func DeliveryKey(orderID, transactionStatus string) string {
	return orderID + ":" + transactionStatus
}

// CheckAndMark reports whether key was already seen, marking it otherwise.
// A nil guard marks nothing.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if g == nil {
		return false, nil
	}
	if key == "" {
		return false, errors.New("delivery key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases key so a later redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, key string) error {
	if g == nil {
		return nil
	}
	if key == "" {
		return errors.New("delivery key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, key))
}
