//go:build container

package lease

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseExcludesSecondOwner(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: testutil.StartRedis(t)})
	t.Cleanup(func() { _ = client.Close() })
	l := NewLocker(client)

	err := l.WithLease(ctx, "ledger_ingest", time.Minute, func(ctx context.Context) error {
		_, ok, err := l.TryAcquire(ctx, "ledger_ingest", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		inner := l.WithLease(ctx, "ledger_ingest", time.Minute, func(context.Context) error {
			t.Fatal("second owner must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)

	token, ok, err := l.TryAcquire(ctx, "ledger_ingest", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, "ledger_ingest", "someone-else"))
	_, ok, err = l.TryAcquire(ctx, "ledger_ingest", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "ledger_ingest", token))
	_, ok, err = l.TryAcquire(ctx, "ledger_ingest", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
