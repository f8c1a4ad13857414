// Package store is the typed client for the shared redis control plane.
// External processes coordinate with the long-running workers exclusively
// through the keys defined here, so every encoding (boolean-as-"0"/"1",
// float timestamp, int lists) is centralized in this package.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Control-plane key schema. Writing "1" to FlagStop requests shutdown,
// writing "1" to FlagSubscriptionsUpdate requests a re-merge, appending
// tokens to KeySubscriptions requests additional coverage.
const (
	FlagStart               = "kt:flag:start"
	FlagStop                = "kt:flag:stop"
	FlagIsLive              = "kt:flag:is_live"
	FlagOrderUpdate         = "kt:flag:order_update"
	FlagSubscriptionsUpdate = "kt:flag:subscriptions_update"

	KeySubscriptions = "kt:data:subscriptions"
	KeyTickData      = "kt:data:tick_data"
	KeySnapshotData  = "kt:data:snapshot_data"

	KeyHistoricalRateLimit = "kc:rate_limit:historical_api"

	lastPricePrefix = "kt:ltp:"
	tickLogPrefix   = "kt:"
)

// ControlStore is the coordination surface shared by the ticker, the cacher
// and the historical fetcher. Every call is a single round-trip; reads always
// reflect the store's current state because other processes mutate these keys
// concurrently.
type ControlStore interface {
	GetFlag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, value bool) error
	SetLiveness(ctx context.Context, ttl time.Duration) error

	AppendToSet(ctx context.Context, name string, tokens []uint32) error
	ReadSet(ctx context.Context, name string) ([]uint32, error)

	GetTimestamp(ctx context.Context, key string) (float64, error)
	SetTimestamp(ctx context.Context, key string, ts float64) error

	SetLastPrice(ctx context.Context, token uint32, price float64) error
	AppendTickLog(ctx context.Context, token uint32, payload []byte) error
	SetSnapshot(ctx context.Context, payload []byte) error
	AppendBatchLog(ctx context.Context, payload []byte) error

	Close() error
}

// Compile-time check to ensure RedisControl implements ControlStore
var _ ControlStore = (*RedisControl)(nil)

type RedisControl struct {
	client *redis.Client
}

func NewRedisControl(client *redis.Client) *RedisControl {
	return &RedisControl{client: client}
}

// GetFlag reads a control flag. A missing key reads as false.
func (r *RedisControl) GetFlag(ctx context.Context, name string) (bool, error) {
	val, err := r.client.Get(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get flag %s: %w", name, err)
	}
	return val == "1", nil
}

func (r *RedisControl) SetFlag(ctx context.Context, name string, value bool) error {
	encoded := "0"
	if value {
		encoded = "1"
	}
	if err := r.client.Set(ctx, name, encoded, 0).Err(); err != nil {
		return fmt.Errorf("store: set flag %s: %w", name, err)
	}
	return nil
}

// SetLiveness refreshes the TTL-backed liveness marker. Its absence after
// the TTL expires tells external monitors the streaming session is stalled.
func (r *RedisControl) SetLiveness(ctx context.Context, ttl time.Duration) error {
	if err := r.client.Set(ctx, FlagIsLive, "1", ttl).Err(); err != nil {
		return fmt.Errorf("store: set liveness: %w", err)
	}
	return nil
}

func (r *RedisControl) AppendToSet(ctx context.Context, name string, tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	vals := make([]interface{}, len(tokens))
	for i, t := range tokens {
		vals[i] = strconv.FormatUint(uint64(t), 10)
	}
	if err := r.client.RPush(ctx, name, vals...).Err(); err != nil {
		return fmt.Errorf("store: append to %s: %w", name, err)
	}
	return nil
}

func (r *RedisControl) ReadSet(ctx context.Context, name string) ([]uint32, error) {
	vals, err := r.client.LRange(ctx, name, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", name, err)
	}

	tokens := make([]uint32, 0, len(vals))
	for _, v := range vals {
		t, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("store: non-integer entry %q in %s: %w", v, name, err)
		}
		tokens = append(tokens, uint32(t))
	}
	return tokens, nil
}

// GetTimestamp reads a shared epoch-seconds value. Missing key reads as 0,
// which callers treat as "never called".
func (r *RedisControl) GetTimestamp(ctx context.Context, key string) (float64, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get timestamp %s: %w", key, err)
	}
	ts, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("store: malformed timestamp %q at %s: %w", val, key, err)
	}
	return ts, nil
}

func (r *RedisControl) SetTimestamp(ctx context.Context, key string, ts float64) error {
	val := strconv.FormatFloat(ts, 'f', -1, 64)
	if err := r.client.Set(ctx, key, val, 0).Err(); err != nil {
		return fmt.Errorf("store: set timestamp %s: %w", key, err)
	}
	return nil
}

func (r *RedisControl) SetLastPrice(ctx context.Context, token uint32, price float64) error {
	key := lastPricePrefix + strconv.FormatUint(uint64(token), 10)
	if err := r.client.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("store: set last price for %d: %w", token, err)
	}
	return nil
}

func (r *RedisControl) AppendTickLog(ctx context.Context, token uint32, payload []byte) error {
	key := tickLogPrefix + strconv.FormatUint(uint64(token), 10)
	if err := r.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("store: append tick log for %d: %w", token, err)
	}
	return nil
}

func (r *RedisControl) SetSnapshot(ctx context.Context, payload []byte) error {
	if err := r.client.Set(ctx, KeySnapshotData, payload, 0).Err(); err != nil {
		return fmt.Errorf("store: set snapshot: %w", err)
	}
	return nil
}

func (r *RedisControl) AppendBatchLog(ctx context.Context, payload []byte) error {
	if err := r.client.RPush(ctx, KeyTickData, payload).Err(); err != nil {
		return fmt.Errorf("store: append batch log: %w", err)
	}
	return nil
}

func (r *RedisControl) Close() error {
	return r.client.Close()
}
