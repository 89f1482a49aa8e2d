package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"storeledger/internal/core/numerator"
)

// Redis allocates with INCR / INCRBY on one key per counter.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates the allocator. Keys are prefix + ":" + counter.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(counter string) string {
	return r.prefix + ":" + counter
}

// Next implements numerator.Allocator.
func (r *Redis) Next(ctx context.Context, counter string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(counter)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", counter, err)
	}
	return n, nil
}

// Reserve implements numerator.RangeReserver.
func (r *Redis) Reserve(ctx context.Context, counter string, size int64) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid range size %d", size)
	}
	n, err := r.client.IncrBy(ctx, r.key(counter), size).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", counter, err)
	}
	return n, nil
}

var (
	_ numerator.Allocator     = (*Redis)(nil)
	_ numerator.RangeReserver = (*Redis)(nil)
)
