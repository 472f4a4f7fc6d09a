package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Idempotency remembers which order an Idempotency-Key produced. Keys are
// scoped per customer so two customers can reuse the same key.
type Idempotency struct {
	RDB redis.Cmdable
}

// Lookup returns the order id stored for key, or "" when there is none.
func (i *Idempotency) Lookup(ctx context.Context, customerID, key string) (string, error) {
	id, err := i.RDB.Get(ctx, idemKey(customerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (i *Idempotency) Remember(ctx context.Context, customerID, key, orderID string) error {
	return i.RDB.Set(ctx, idemKey(customerID, key), orderID, TTLIdempotency).Err()
}

// CachedStatus is the short-lived projection served by the status
// endpoint. Party ids are kept so visibility can be checked on a hit.
type CachedStatus struct {
	Status     string    `json:"status"`
	CustomerID string    `json:"customer_id"`
	SupplierID string    `json:"supplier_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	b, err := c.RDB.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var cs CachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return CachedStatus{}, false, err
	}
	return cs, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID string, cs CachedStatus) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, statusKey(orderID), b, TTLStatusCache).Err()
}

// Invalidate drops the cached status after a transition.
func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, statusKey(orderID)).Err()
}

// Dedup claims event ids for one consuming service.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.RDB.SetNX(ctx, dedupKey(d.Service, eventID), "1", TTLDedup).Result()
}

func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, dedupKey(d.Service, eventID)).Err()
}
