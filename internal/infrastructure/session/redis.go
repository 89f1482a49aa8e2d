package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
)

// Redis keeps sessions as JSON strings with a TTL refreshed on every Put.
type Redis[S any] struct {
	client *redis.Client
	prefix string
	entity string
	ttl    time.Duration
}

// NewRedis creates a store whose keys are prefix + ":" + handle id.
func NewRedis[S any](client *redis.Client, prefix, entity string, ttl time.Duration) *Redis[S] {
	return &Redis[S]{client: client, prefix: prefix, entity: entity, ttl: ttl}
}

func (r *Redis[S]) key(k id.ID) string {
	return r.prefix + ":" + k.String()
}

// Put stores value under key.
func (r *Redis[S]) Put(ctx context.Context, key id.ID, value S) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.entity, err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.entity, err)
	}
	return nil
}

// Get returns the value under key.
func (r *Redis[S]) Get(ctx context.Context, key id.ID) (S, error) {
	var out S
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, apperror.NewNotFound(r.entity, key)
	}
	if err != nil {
		return out, fmt.Errorf("redis get %s: %w", r.entity, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s: %w", r.entity, err)
	}
	return out, nil
}

// Delete removes key.
func (r *Redis[S]) Delete(ctx context.Context, key id.ID) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.entity, err)
	}
	return nil
}
