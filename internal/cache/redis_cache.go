package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "biztrack:attempts:"

// hitScript increments the counter and sets its expiry in one step. A key
// left without a TTL is given one on its next hit.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisAttemptCounter keeps a fixed-window counter per key so every API
// replica sees the same attempt totals.
type RedisAttemptCounter struct {
	client *redis.Client
}

func NewRedisAttemptCounter(addr string, password string, db int) *RedisAttemptCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAttemptCounter{client: client}
}

func (c *RedisAttemptCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAttemptCounter) Close() error {
	return c.client.Close()
}

func (c *RedisAttemptCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = time.Minute
	}
	return hitScript.Run(ctx, c.client, []string{attemptKeyPrefix + key}, window.Milliseconds()).Int64()
}
