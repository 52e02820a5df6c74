package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds rendered valuations in Redis so report callers do not re-walk
// every product's lot history on each request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func valuationKey(tenantID uuid.UUID, asOf time.Time) string {
	return fmt.Sprintf("valuation:%s:%s", tenantID, asOf.Format("2006-01-02"))
}

// Get returns the cached valuation, or false when absent.
func (c *Cache) Get(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (AssetValuation, bool, error) {
	if c == nil || c.client == nil {
		return AssetValuation{}, false, nil
	}
	data, err := c.client.Get(ctx, valuationKey(tenantID, asOf)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AssetValuation{}, false, nil
	}
	if err != nil {
		return AssetValuation{}, false, fmt.Errorf("valuation: cache get: %w", err)
	}
	var v AssetValuation
	if err := json.Unmarshal(data, &v); err != nil {
		return AssetValuation{}, false, fmt.Errorf("valuation: cache decode: %w", err)
	}
	return v, true, nil
}

// Set stores the valuation under its tenant-day key.
func (c *Cache) Set(ctx context.Context, v AssetValuation) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("valuation: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, valuationKey(v.TenantID, v.AsOf), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("valuation: cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached valuation for a tenant-day.
func (c *Cache) Invalidate(ctx context.Context, tenantID uuid.UUID, asOf time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, valuationKey(tenantID, asOf)).Err()
}
