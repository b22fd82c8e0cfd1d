// Package redisq adapts a Redis list to the outbound Queue port.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a thin wrapper over Redis list operations. It performs no
// validation and no retries; the consumer and recovery manager interpret
// outcomes.
type Queue struct {
	rdb *redis.Client
}

// New creates a Queue over the given Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Push appends payload to the tail of the list at key (RPUSH).
func (q *Queue) Push(ctx context.Context, key, payload string) error {
	if err := q.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Pop blocks up to timeout for the head element of the list (BLPOP).
// A timeout with no element is the normal idle outcome, reported as ok=false.
func (q *Queue) Pop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("blpop %s: %w", key, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return "", false, fmt.Errorf("blpop %s: unexpected reply length %d", key, len(res))
	}
	return res[1], true, nil
}

// Length returns the number of pending elements at key.
func (q *Queue) Length(ctx context.Context, key string) (int64, error) {
	n, err := q.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

// Clear deletes the list at key, returning how many elements it held.
func (q *Queue) Clear(ctx context.Context, key string) (int64, error) {
	n, err := q.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	if err := q.rdb.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("del %s: %w", key, err)
	}
	return n, nil
}
