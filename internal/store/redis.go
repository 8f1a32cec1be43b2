package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/collection-planner/model"
)

// Redis is a PlanStore backed by a Redis instance, for deployments where
// plan snapshots should survive a process restart. Expiry is delegated to
// Redis key TTLs, so Sweep has nothing to collect.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a Redis-backed store. A non-positive ttl uses
// DefaultTTL; an empty prefix defaults to "plan:".
func NewRedis(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "plan:"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (*model.CollectionPlan, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	plan, err := decodePlan(data)
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, plan *model.CollectionPlan) error {
	snapshot, err := encodePlan(plan)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, snapshot, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (r *Redis) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (r *Redis) Len(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}
