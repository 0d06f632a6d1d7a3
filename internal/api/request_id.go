package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/HSPiira/timeline-sub000/internal/auth"
)

// RequestIDMiddleware 请求 ID 中间件
// 沿用调用方传入的 X-Request-ID,缺失时生成一个,
// 写回响应头并注入请求上下文供审计日志使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := auth.WithRequestID(c.Request.Context(), requestID)
		ctx = auth.WithClientIP(ctx, c.ClientIP())
		ctx = auth.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
