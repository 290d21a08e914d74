package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis distributed lock
// ============================================================================
//
// Acquire: SET key holder NX EX ttl. The holder token is checked on release
// so an expired holder never deletes a lock that has since been re-acquired.
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("acquire distributed lock failed")
	ErrLockExpired = errors.New("lock expired")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock is one holder's claim on a Redis key.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // holder token
	expiration time.Duration
}

// NewDistributedLock prepares a lock on key held under the value token.
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes a single non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock deletes the key only while this holder still owns it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// Per-user rule set lock
// ============================================================================

// Locker serializes work on one key. release must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RuleSetKey guards a user's rule ordering; reorder and apply-to-existing
// both take it so neither interleaves with the other.
func RuleSetKey(userID int64) string {
	return fmt.Sprintf("rules:lock:user:%d", userID)
}

// RedisLocker hands out DistributedLocks with a fresh holder token each time.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

// NewRedisLocker retries every 50ms, up to 100 times, before giving up.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    100,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		// the lock expires on its own if this fails
		_ = l.Unlock(context.Background())
	}, nil
}
