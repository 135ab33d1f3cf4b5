package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can keep a key locked.
	DefaultTTL = 30 * time.Second

	defaultRetry  = 25 * time.Millisecond
	maxRetry      = 500 * time.Millisecond
	defaultPrefix = "starpay:lock:"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption { return func(r *Redis) { r.prefix = prefix } }

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) RedisOption { return func(r *Redis) { r.ttl = ttl } }

// WithRetryInterval sets the initial polling interval while waiting.
func WithRetryInterval(d time.Duration) RedisOption { return func(r *Redis) { r.retry = d } }

// NewRedis returns a Locker backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: defaultPrefix,
		ttl:    DefaultTTL,
		retry:  defaultRetry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Locker = (*Redis)(nil)

// Lock implements Locker with SET NX PX and exponential backoff.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	wait := r.retry

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, errors.Join(ErrTimeout, ctx.Err())
		case err != nil:
			return nil, fmt.Errorf("keylock: acquire %q: %w", key, err)
		case ok:
			return r.unlocker(k, token), nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrTimeout, ctx.Err())
		case <-t.C:
		}
		wait = min(wait*2, maxRetry)
	}
}

func (r *Redis) unlocker(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, token) })
	}
}

// release runs on a fresh context so a cancelled caller still frees the key.
func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err() //nolint:errcheck // the ttl reclaims the key
}
