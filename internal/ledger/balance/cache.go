package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache keeps current account balances in Redis. It is a derived view only:
// entries are dropped whenever the journal engine posts to an account, and a
// miss always falls back to recomputing from the ledger store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a balance cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(tenantID, accountID int64) string {
	return fmt.Sprintf("ledger:balance:%d:%d", tenantID, accountID)
}

// Get returns the cached balance and whether it was present.
func (c *Cache) Get(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, cacheKey(tenantID, accountID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return val, true
}

// Set stores a freshly computed balance.
func (c *Cache) Set(ctx context.Context, tenantID, accountID int64, val decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(tenantID, accountID), val.String(), c.ttl).Err()
}

// Invalidate drops cached balances for the given accounts. Implements the
// journal engine's BalanceInvalidator port.
func (c *Cache) Invalidate(ctx context.Context, tenantID int64, accountIDs []int64) {
	if c == nil || c.client == nil || len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, cacheKey(tenantID, id))
	}
	_ = c.client.Del(ctx, keys...).Err()
}
