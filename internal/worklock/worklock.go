// Package worklock is a redis-backed single-flight guard for the background
// workers. When several service replicas share the database, only the replica
// holding the lock runs a sweep or dispatch round.
package worklock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "worklock:"

// Client is the subset of the redis client the lock needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Lock struct {
	client Client
	owner  string
}

func New(client Client) *Lock {
	return &Lock{client: client, owner: uuid.NewString()}
}

// Acquire takes the named lock for at most ttl. Returns false without error
// when another owner holds it.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, keyPrefix+key, l.owner, ttl).Result()
}

// Release frees the lock if this instance still owns it. A lock that expired
// and was re-acquired elsewhere is left alone.
func (l *Lock) Release(ctx context.Context, key string) error {
	owner, err := l.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != l.owner {
		return nil
	}
	return l.client.Del(ctx, keyPrefix+key).Err()
}
