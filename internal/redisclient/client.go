package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_idempotency.lua
var claimIdempotencyScript string

//go:embed scripts/forget_idempotency.lua
var forgetIdempotencyScript string

// pendingMarker is stored under a key while its request is still running
const pendingMarker = "__pending__"

// Claim is the outcome of claiming an idempotency key
type Claim struct {
	// Claimed is true when this caller now owns the key.
	Claimed bool
	// OrderID is set when an earlier request already completed.
	OrderID string
	// InFlight is true when an earlier request holds the key but has not
	// finished.
	InFlight bool
}

type Client struct {
	rdb          *redis.Client
	claimScript  *redis.Script
	forgetScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing connection
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:          rdb,
		claimScript:  redis.NewScript(claimIdempotencyScript),
		forgetScript: redis.NewScript(forgetIdempotencyScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ClaimIdempotencyKey atomically claims key for ttl. If the key is already
// held the returned Claim says whether it finished and with which order.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (Claim, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		pendingMarker, ttl.Milliseconds()).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("claim idempotency script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return Claim{}, fmt.Errorf("unexpected script result type")
	}
	claimed, _ := values[0].(int64)
	value, _ := values[1].(string)

	if claimed == 1 {
		return Claim{Claimed: true}, nil
	}
	if value == pendingMarker {
		return Claim{InFlight: true}, nil
	}
	return Claim{OrderID: value}, nil
}

// CompleteIdempotencyKey records the order a claimed key produced
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, orderID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

// ForgetIdempotencyKey drops a claim that never produced an order so the
// client can retry. Completed keys are left alone.
func (c *Client) ForgetIdempotencyKey(ctx context.Context, key string) error {
	_, err := c.forgetScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, pendingMarker).Result()
	if err != nil {
		return fmt.Errorf("forget idempotency script failed: %w", err)
	}
	return nil
}
