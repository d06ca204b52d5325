package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"biztrack/backend/internal/cache"
)

type attemptLimiter struct {
	counter cache.AttemptCounter
	prefix  string
	max     int
	window  time.Duration
	logger  *zap.Logger
}

func newAttemptLimiter(counter cache.AttemptCounter, prefix string, max int, window time.Duration, logger *zap.Logger) *attemptLimiter {
	if counter == nil {
		counter = cache.NewMemoryAttemptCounter()
	}
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{counter: counter, prefix: prefix, max: max, window: window, logger: logger}
}

// Allow counts one attempt for key. A counter failure lets the attempt
// through.
func (l *attemptLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	n, err := l.counter.Hit(ctx, l.prefix+key, l.window)
	if err != nil {
		l.logger.Warn("attempt counter unavailable", zap.String("key", l.prefix+key), zap.Error(err))
		return true
	}
	return n <= int64(l.max)
}
