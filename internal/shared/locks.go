package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReceivableLockKey builds the redis key guarding one counterparty-day
// recomputation. At most one writer may hold it at a time.
func ReceivableLockKey(tenantID uuid.UUID, counterpartyID int64, day time.Time) string {
	return fmt.Sprintf("recv:%s:%d:%s:lock", tenantID, counterpartyID, day.Format("2006-01-02"))
}

// Locks serialises critical sections on redis keys.
type Locks struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocks constructs Locks. ttl bounds how long a crashed holder can block
// other writers.
func NewLocks(client redis.UniversalClient, ttl time.Duration) *Locks {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locks{client: redislock.New(client), ttl: ttl}
}

// Acquire obtains the lock for key, retrying briefly before giving up with
// ErrLockNotObtained. The caller must call the returned release function.
func (l *Locks) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locks not initialised")
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockNotObtained
		}
		return nil, fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
