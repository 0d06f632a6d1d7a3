package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/metrics"
)

// MetricsHandler Prometheus 指标处理器
func MetricsHandler(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// APIMetricsMiddleware 记录每个请求的计数与耗时
// 使用路由模板(FullPath)作为标签,避免标签基数随路径参数膨胀
func APIMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}
