// Package lease keeps two instances from running the same background job at
// once using a Redis key with a random owner token.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const keyPrefix = "clockwise:lease:"

var (
	ErrEmptyKey    = errors.New("lease_key_empty")
	ErrInvalidTTL  = errors.New("lease_ttl_invalid")
	ErrNotAcquired = errors.New("lease_not_acquired")
)

type Locker struct {
	client redis.UniversalClient
	script *redis.Script
}

// NewLocker returns nil when client is nil; a nil Locker runs work unguarded.
func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

// TryAcquire sets the lease key if it is free and returns the owner token.
func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if name == "" {
		return "", false, ErrEmptyKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes the lease only while token still owns it.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	if l == nil || name == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{keyPrefix + name}, token).Err()
}

// WithLease runs fn while holding the named lease. It returns ErrNotAcquired
// without running fn when another owner holds it. A nil Locker runs fn.
func (l *Locker) WithLease(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	token, ok, err := l.TryAcquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		// Release on a fresh context so an expired job context still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, name, token)
	}()
	return fn(ctx)
}
