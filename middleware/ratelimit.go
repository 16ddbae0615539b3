package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fdpricer/limiter"
	"github.com/wyfcoding/fdpricer/response"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 以客户端 IP 为标识限流。
// 限流器内部出错时放行并记录日志。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewLocalRateLimitMiddleware 创建按客户端 IP 隔离的本地令牌桶限流中间件。
// limit 为每秒请求数, burst 为突发容量。
func NewLocalRateLimitMiddleware(limit float64, burst int) gin.HandlerFunc {
	return RateLimitMiddleware(limiter.NewKeyedLimiter(rate.Limit(limit), burst, 10*time.Minute))
}
