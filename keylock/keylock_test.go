package keylock_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/starpay/keylock"
)

func exerciseMutualExclusion(t *testing.T, l keylock.Locker, key string) {
	t.Helper()

	var (
		inside     atomic.Int32
		violations atomic.Int32
		wg         sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			if inside.Add(1) > 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
}

func TestLocalMutualExclusion(t *testing.T) {
	l := keylock.NewLocal()
	exerciseMutualExclusion(t, l, "chg_1")
	assert.Equal(t, 0, l.Len())
}

func TestLocalIndependentKeys(t *testing.T) {
	l := keylock.NewLocal()

	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err, "a held lock on one key must not block another key")
	unlockB()
}

func TestLocalCancelledWait(t *testing.T) {
	l := keylock.NewLocal()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.ErrorIs(t, err, keylock.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, l.Len())

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestZeroValueLocal(t *testing.T) {
	var l keylock.Local
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("STARPAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STARPAY_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMutualExclusion(t *testing.T) {
	client := redisClient(t)
	prefix := fmt.Sprintf("starpay:test:%d:", time.Now().UnixNano())
	l := keylock.NewRedis(client, keylock.WithPrefix(prefix), keylock.WithRetryInterval(time.Millisecond))

	exerciseMutualExclusion(t, l, "chg_1")

	n, err := client.Exists(context.Background(), prefix+"chg_1").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisTimeout(t *testing.T) {
	client := redisClient(t)
	prefix := fmt.Sprintf("starpay:test:%d:", time.Now().UnixNano())
	l := keylock.NewRedis(client, keylock.WithPrefix(prefix), keylock.WithTTL(5*time.Second))

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, keylock.ErrTimeout)
}

func TestRedisUnlockKeepsForeignToken(t *testing.T) {
	client := redisClient(t)
	prefix := fmt.Sprintf("starpay:test:%d:", time.Now().UnixNano())
	l := keylock.NewRedis(client, keylock.WithPrefix(prefix))

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	require.NoError(t, client.Set(context.Background(), prefix+"k", "someone-else", time.Minute).Err())
	unlock()

	v, err := client.Get(context.Background(), prefix+"k").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
	client.Del(context.Background(), prefix+"k")
}
