package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ SnapshotCache = (*Redis)(nil)

// Redis is a TTL'd snapshot cache shared across sessions of one
// environment.
type Redis struct {
	client      *redis.Client
	environment string
	ttl         time.Duration
}

func NewRedis(client *redis.Client, environment string, ttl time.Duration) *Redis {
	return &Redis{client: client, environment: environment, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, entityType, entityID string) (map[string]any, bool, error) {
	raw, err := r.client.Get(ctx, r.key(entityType, entityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached snapshot: %w", err)
	}
	// Decode with json.Number so a cached state compares equal to a
	// fresh remote read of the same entity.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, false, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Put(ctx context.Context, entityType, entityID string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding snapshot for cache: %w", err)
	}
	if err := r.client.Set(ctx, r.key(entityType, entityID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing cached snapshot: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, entityType, entityID string) error {
	if err := r.client.Del(ctx, r.key(entityType, entityID)).Err(); err != nil {
		return fmt.Errorf("invalidating cached snapshot: %w", err)
	}
	return nil
}

func (r *Redis) key(entityType, entityID string) string {
	return "cache:" + r.environment + ":" + entityType + ":" + entityID
}
