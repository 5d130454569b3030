package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Streaks tracks consecutive terminal delivery failures per destination.
type Streaks interface {
	// Fail bumps the streak and returns its new length.
	Fail(ctx context.Context, destinationID string) (int, error)
	// Reset clears the streak after a successful delivery.
	Reset(ctx context.Context, destinationID string) error
}

// RedisStreaks keeps streak counters in redis with a sliding expiry, so a
// destination that goes quiet doesn't stay one failure away from disable
// forever.
type RedisStreaks struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisStreaks(rdb *redis.Client, window time.Duration) *RedisStreaks {
	return &RedisStreaks{rdb: rdb, window: window}
}

func streakKey(destinationID string) string {
	return "pagehook:streak:" + destinationID
}

func (s *RedisStreaks) Fail(ctx context.Context, destinationID string) (int, error) {
	key := streakKey(destinationID)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bump failure streak: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStreaks) Reset(ctx context.Context, destinationID string) error {
	if err := s.rdb.Del(ctx, streakKey(destinationID)).Err(); err != nil {
		return fmt.Errorf("reset failure streak: %w", err)
	}
	return nil
}
