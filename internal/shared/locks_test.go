package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocks(t *testing.T) *Locks {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocks(client, time.Second)
}

func TestAcquireAndRelease(t *testing.T) {
	locks := newTestLocks(t)
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "recv:test:lock")
	require.NoError(t, err)
	release()

	// Released locks can be taken again immediately.
	release, err = locks.Acquire(ctx, "recv:test:lock")
	require.NoError(t, err)
	release()
}

func TestAcquireHeldLock(t *testing.T) {
	locks := newTestLocks(t)
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "recv:test:lock")
	require.NoError(t, err)
	defer release()

	// A cancelled context short-circuits the retry loop so the test does not
	// sit through the backoff schedule.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = locks.Acquire(cancelled, "recv:test:lock")
	require.Error(t, err)
}

func TestAcquireDistinctKeys(t *testing.T) {
	locks := newTestLocks(t)
	ctx := context.Background()

	releaseA, err := locks.Acquire(ctx, "recv:a:lock")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locks.Acquire(ctx, "recv:b:lock")
	require.NoError(t, err)
	defer releaseB()
}

func TestReceivableLockKey(t *testing.T) {
	tenant := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	day := time.Date(2026, 3, 1, 17, 45, 0, 0, time.UTC)

	key := ReceivableLockKey(tenant, 42, day)
	require.Equal(t, "recv:6ba7b810-9dad-11d1-80b4-00c04fd430c8:42:2026-03-01:lock", key)
}
