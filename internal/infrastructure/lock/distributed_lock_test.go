package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTryLockIsExclusive(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "k", "a", time.Minute)
	b := NewDistributedLock(client, "k", "b", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// b cannot release a's lock
	require.ErrorIs(t, b.Unlock(ctx), ErrLockExpired)
	require.NoError(t, a.Unlock(ctx))

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockGivesUpAfterRetries(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "k", "holder", time.Minute)
	require.NoError(t, holder.Lock(ctx, time.Millisecond, 1))

	waiter := NewDistributedLock(client, "k", "waiter", time.Minute)
	require.ErrorIs(t, waiter.Lock(ctx, time.Millisecond, 3), ErrLockFailed)
}

func TestExpiredLockCanBeTaken(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "k", "a", time.Second)
	require.NoError(t, a.Lock(ctx, time.Millisecond, 1))
	mr.FastForward(2 * time.Second)

	b := NewDistributedLock(client, "k", "b", time.Second)
	require.NoError(t, b.Lock(ctx, time.Millisecond, 1))
	require.ErrorIs(t, a.Unlock(ctx), ErrLockExpired)
}

func TestRedisLockerSerializesHolders(t *testing.T) {
	_, client := newClient(t)
	locker := NewRedisLocker(client, 10*time.Second)
	locker.retryInterval = time.Millisecond
	locker.maxRetries = 5000

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), RuleSetKey(1))
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
}

func TestRedisLockerHonoursContext(t *testing.T) {
	_, client := newClient(t)
	locker := NewRedisLocker(client, 10*time.Second)

	release, err := locker.Acquire(context.Background(), RuleSetKey(2))
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, RuleSetKey(2))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRuleSetKey(t *testing.T) {
	require.Equal(t, "rules:lock:user:42", RuleSetKey(42))
}
