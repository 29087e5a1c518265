package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]any
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]any{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return fmt.Sprint(v), nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memoryStore) WebhookEventKey(provider, eventID string) string {
	return fmt.Sprintf("fl:webhook_event:%s:%s", provider, eventID)
}

func TestEventGuardSeenOnlyAfterMark(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewEventGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = guard.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen, "checking never records the event")
	assert.Empty(t, store.data)

	require.NoError(t, guard.MarkSettled(ctx, "stripe", "evt_1"))
	require.NoError(t, guard.MarkSettled(ctx, "stripe", "evt_1"), "marking twice is harmless")

	seen, err = guard.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.Seen(ctx, "square", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen, "event ids are scoped per provider")
}

func TestEventGuardErrors(t *testing.T) {
	_, err := NewEventGuard(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewEventGuard(newMemoryStore(), -time.Second)
	assert.Error(t, err)

	store := newMemoryStore()
	store.err = errors.New("redis down")
	guard, err := NewEventGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.Seen(ctx, "stripe", "evt")
	assert.ErrorIs(t, err, store.err)
	assert.ErrorIs(t, guard.MarkSettled(ctx, "stripe", "evt"), store.err)

	_, err = guard.Seen(ctx, "stripe", "")
	assert.Error(t, err)
	assert.Error(t, guard.MarkSettled(ctx, "stripe", ""))
}
