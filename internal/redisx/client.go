package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// MarkOnce sets key if it is absent and reports whether this call set it.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

type cachedStatus struct {
	Status orders.Status `json:"status"`
}

// StatusCache mirrors committed order statuses for cheap reads.
type StatusCache struct {
	RDB *redis.Client
}

func (c *StatusCache) SetStatus(ctx context.Context, orderID string, status orders.Status) error {
	b, err := json.Marshal(cachedStatus{Status: status})
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// Status returns the cached status; ok is false on a miss.
func (c *StatusCache) Status(ctx context.Context, orderID string) (orders.Status, bool, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var cs cachedStatus
	if err := json.Unmarshal([]byte(s), &cs); err != nil {
		return "", false, err
	}
	return cs.Status, true, nil
}

// Idempotency remembers which order a checkout request produced.
type Idempotency struct {
	RDB *redis.Client
}

func (i *Idempotency) Lookup(ctx context.Context, buyer, key string) (string, bool, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyer, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, buyer, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, buyer, key), orderID, TTLIdempotency).Err()
}

// Dedup remembers processed event ids per service.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// First reports whether eventID is seen for the first time.
func (d *Dedup) First(ctx context.Context, eventID string) (bool, error) {
	return MarkOnce(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Service, eventID), TTLDedup)
}

// Forget drops the mark so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Err()
}
