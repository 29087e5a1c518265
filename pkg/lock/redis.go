package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultRetryStep = 50 * time.Millisecond
)

// RedisLocker is a distributed Locker backed by bsm/redislock.
type RedisLocker struct {
	client    *redislock.Client
	namespace string
	ttl       time.Duration
	retry     time.Duration
	tryOnce   bool
	logg      *logger.Logger
}

type RedisLockerParams struct {
	Client    goredis.UniversalClient
	Namespace string
	TTL       time.Duration
	Retry     time.Duration
	// TryOnce makes Acquire fail fast with CodeConflict instead of waiting.
	TryOnce bool
	Logger  *logger.Logger
}

func NewRedisLocker(params RedisLockerParams) (*RedisLocker, error) {
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	retry := params.Retry
	if retry <= 0 {
		retry = defaultRetryStep
	}
	return &RedisLocker{
		client:    redislock.New(params.Client),
		namespace: params.Namespace,
		ttl:       ttl,
		retry:     retry,
		tryOnce:   params.TryOnce,
		logg:      params.Logger,
	}, nil
}

// Acquire retries until the lock is obtained or ctx expires, unless the
// locker was built with TryOnce.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.key(key)
	strategy := redislock.LinearBackoff(l.retry)
	if l.tryOnce {
		strategy = redislock.NoRetry()
	}
	obtained, err := l.client.Obtain(ctx, lockKey, l.ttl, &redislock.Options{RetryStrategy: strategy})
	if err == redislock.ErrNotObtained {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "lock busy").WithDetails(map[string]any{"key": lockKey})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain distributed lock")
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := obtained.Release(releaseCtx); err != nil && err != redislock.ErrLockNotHeld && l.logg != nil {
			l.logg.Warn(l.logg.WithField(ctx, "lock_key", lockKey), fmt.Sprintf("release distributed lock: %v", err))
		}
	}, nil
}

func (l *RedisLocker) key(key string) string {
	if l.namespace == "" {
		return "lock:" + key
	}
	return fmt.Sprintf("%s:lock:%s", l.namespace, key)
}

// Chain acquires each locker in order and releases in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, locker := range c {
		if locker == nil {
			continue
		}
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
