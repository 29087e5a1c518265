// Package webhooks holds transport-level helpers shared by provider webhook endpoints.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type eventStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookEventKey(provider, eventID string) string
}

// EventGuard remembers provider event ids whose settlement already committed.
// Ids are recorded only after the applier succeeds, so an acknowledged
// duplicate always refers to work that is durable. The applier stays
// idempotent without it.
type EventGuard struct {
	store eventStore
	ttl   time.Duration
}

func NewEventGuard(store eventStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// Seen reports whether the event was recorded as settled.
func (g *EventGuard) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	raw, err := g.store.Get(ctx, g.store.WebhookEventKey(provider, eventID))
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get webhook event key: %w", err)
	}
	return raw != "", nil
}

// MarkSettled records the event once its settlement has committed.
func (g *EventGuard) MarkSettled(ctx context.Context, provider, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if _, err := g.store.SetNX(ctx, g.store.WebhookEventKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), g.ttl); err != nil {
		return fmt.Errorf("set webhook event key: %w", err)
	}
	return nil
}
