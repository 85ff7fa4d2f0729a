package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter per chat. It backs the dialogue gate
// in the application layer.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, chatID string) (bool, error) {
	key := chatDialogueKey(chatID)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, err
		}
	}
	return count <= int64(r.limit), nil
}

func chatDialogueKey(chatID string) string {
	return fmt.Sprintf("rate_limit:dialogue:%s", chatID)
}
