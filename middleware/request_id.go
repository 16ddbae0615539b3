// Package middleware 提供了 HTTP 服务使用的 Gin 中间件。
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/fdpricer/contextx"
)

const (
	HeaderXRequestID = "X-Request-ID"
)

// RequestID 透传或生成请求 ID, 注入请求上下文并写回响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := contextx.WithRequestID(c.Request.Context(), requestID)
		ctx = contextx.WithIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
