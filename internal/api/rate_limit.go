package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 全局令牌桶限流。
// 事件写入是突发型流量,burst 吸收批量回填的瞬时峰值,
// rps 托底保护数据库的追加链路。
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if limiter.Allow() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Code:    http.StatusTooManyRequests,
			Message: "too many requests",
		})
	}
}
