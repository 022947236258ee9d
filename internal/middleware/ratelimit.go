package middleware

import (
	"fmt"
	"time"

	"backend/pkg/apperror"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginRateLimiter throttles a single endpoint per client IP with a
// fixed-window counter in redis. A nil client or a redis failure fails
// open: losing the throttle must never take down login itself.
type LoginRateLimiter struct {
	client *redis.Client
	log    *zap.Logger
	max    int
	window time.Duration
}

// NewLoginRateLimiter builds the limiter. client may be nil, disabling it.
func NewLoginRateLimiter(client *redis.Client, log *zap.Logger, max int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{client: client, log: log, max: max, window: window}
}

// Handle is the gin middleware.
func (l *LoginRateLimiter) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.client == nil || l.max <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:login:%s", c.ClientIP())
		ctx := c.Request.Context()

		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
				l.log.Warn("rate limiter expire failed", zap.Error(err))
			}
		}
		if count > int64(l.max) {
			response.AbortFail(c, apperror.Locked("Demasiados intentos. Inténtalo de nuevo más tarde"))
			return
		}
		c.Next()
	}
}
