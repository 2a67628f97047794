package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nlenjibi/storefront-wishlist/pkg/instance"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 10 * time.Minute
	defaultLockEnv = "local"
)

// Lock keeps one wishlist job from running on two cron workers at once.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Locker hands out the lock guarding a named job.
type Locker interface {
	For(job string) Lock
}

// lockStore is the slice of pkg/redis.Client the locks need.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLocker builds per-job locks under the wishlist lock namespace, scoped
// to one deployment environment: wl:lock:<env>:<job>.
type RedisLocker struct {
	client lockStore
	env    string
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed locker. The TTL bounds how long a
// crashed worker can block a job.
func NewRedisLocker(client lockStore, env string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for job locks")
	}
	if env == "" {
		env = defaultLockEnv
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, env: env, ttl: ttl}, nil
}

// For returns a fresh lock for the job.
func (l *RedisLocker) For(job string) Lock {
	return &redisLock{
		client: l.client,
		key:    l.client.LockKey(l.env + ":" + job),
		ttl:    l.ttl,
	}
}

type redisLock struct {
	client lockStore
	key    string
	ttl    time.Duration
	owner  string
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	// The instance prefix shows which worker holds a job in redis.
	owner := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only while this worker still owns it; after the TTL
// another worker may have taken it over.
func (l *redisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read owner of %s: %w", l.key, err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
