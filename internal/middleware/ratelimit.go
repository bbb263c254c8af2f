package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
	"github.com/noah-isme/slotbook-api/pkg/response"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

type scriptRunner interface {
	redis.Scripter
}

// RateLimiter is a Redis fixed-window limiter shared by every API instance.
type RateLimiter struct {
	rdb      scriptRunner
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
	logger   *zap.Logger
}

// NewRateLimiter builds a limiter allowing limit requests per window per client and route.
func NewRateLimiter(rdb scriptRunner, limit int, window time.Duration, prefix string, failOpen bool, logger *zap.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "rl"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, failOpen: failOpen, logger: logger}
}

// Middleware rejects clients over the limit with TOO_MANY_REQUESTS.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.rdb == nil {
			c.Next()
			return
		}
		key := fmt.Sprintf("%s:%s:%s", rl.prefix, c.FullPath(), c.ClientIP())
		count, ttl, err := rl.incr(c.Request.Context(), key)
		if err != nil {
			rl.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			if rl.failOpen {
				c.Next()
				return
			}
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "rate limiter unavailable"))
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			seconds := int(ttl.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) incr(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %T", res)
	}
	count, err := toInt64(values[0])
	if err != nil {
		return 0, 0, err
	}
	ttl, err := toInt64(values[1])
	if err != nil {
		return 0, 0, err
	}
	return count, time.Duration(ttl) * time.Millisecond, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rate limit value %T", v)
	}
}
