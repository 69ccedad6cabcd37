package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const positionKeyPrefix = "driver:position:"

// RedisPositions implements PositionCache on Redis.
type RedisPositions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPositions creates a Redis position cache. Entries expire after ttl.
func NewRedisPositions(client *redis.Client, ttl time.Duration) *RedisPositions {
	return &RedisPositions{client: client, ttl: ttl}
}

func positionKey(driverID int64) string {
	return positionKeyPrefix + strconv.FormatInt(driverID, 10)
}

// Set stores p unless a newer position is already cached.
func (r *RedisPositions) Set(ctx context.Context, p Position) error {
	key := positionKey(p.DriverID)
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getPosition(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != nil && current.RecordedAt.After(p.RecordedAt) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get returns nil when nothing is cached for the driver.
func (r *RedisPositions) Get(ctx context.Context, driverID int64) (*Position, error) {
	p, err := getPosition(ctx, r.client, positionKey(driverID))
	if err != nil {
		return nil, fmt.Errorf("failed to get position of driver %d: %w", driverID, err)
	}
	return p, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getPosition(ctx context.Context, c stringGetter, key string) (*Position, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Position
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &p, nil
}
