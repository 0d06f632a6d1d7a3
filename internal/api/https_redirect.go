package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HTTPSRedirectMiddlewareWithConfig 生产部署时把明文请求 301 到 HTTPS。
// enabled 为 false 时直接放行,便于本地与测试环境走 HTTP。
func HTTPSRedirectMiddlewareWithConfig(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return HTTPSRedirectMiddleware()
}

// HTTPSRedirectMiddleware 对非 HTTPS 请求返回永久重定向
func HTTPSRedirectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsHTTPS(c) {
			c.Next()
			return
		}

		host := c.Request.Host
		if host == "" {
			host = "localhost"
		}
		c.Redirect(http.StatusMovedPermanently, "https://"+host+c.Request.RequestURI)
		c.Abort()
	}
}

// IsHTTPS 判断请求是否经由 HTTPS 到达。
// 服务常部署在反向代理后面,优先看转发头,再看直连 TLS。
func IsHTTPS(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		return true
	}
	if c.GetHeader("X-Forwarded-SSL") == "on" {
		return true
	}
	return c.Request.URL.Scheme == "https" || c.Request.TLS != nil
}
