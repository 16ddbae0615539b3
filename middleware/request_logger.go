package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fdpricer/contextx"
)

// Logger 访问日志中间件, 耗时超过 slowThreshold 的请求以 Warn 级别记录。
// trace_id 由 logging.TraceHandler 从请求上下文注入。
func Logger(logger *slog.Logger, slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		ctx := c.Request.Context()
		attrs := []any{
			"request_id", contextx.GetRequestID(ctx),
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"cost", cost,
			"user_agent", c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		if slowThreshold > 0 && cost > slowThreshold {
			logger.WarnContext(ctx, "slow http request", attrs...)
			return
		}
		logger.InfoContext(ctx, "http request", attrs...)
	}
}
