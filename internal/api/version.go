package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// DeprecatedVersionInfo 已废弃 API 版本的下线计划
type DeprecatedVersionInfo struct {
	Version         string
	DeprecationDate time.Time
	SunsetDate      time.Time
	MigrationPath   string
}

var (
	deprecatedVersions = make(map[string]DeprecatedVersionInfo)
	deprecatedMu       sync.RWMutex
)

// VersionMiddleware 解析请求的 API 版本并写入上下文。
// 路径 /api/v1/subjects/... 中的 v1 是默认来源,
// API-Version 请求头存在时覆盖路径里的版本。
// 命中废弃版本时通过响应头告知下线时间与迁移路径。
func VersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		version := versionFromPath(c.Request.URL.Path)
		if hv := c.GetHeader("API-Version"); hv != "" {
			version = hv
		}

		deprecatedMu.RLock()
		info, deprecated := deprecatedVersions[version]
		deprecatedMu.RUnlock()
		if deprecated {
			c.Header("X-API-Deprecated", "true")
			c.Header("X-API-Deprecation-Date", info.DeprecationDate.Format("2006-01-02"))
			c.Header("X-API-Sunset-Date", info.SunsetDate.Format("2006-01-02"))
			if info.MigrationPath != "" {
				c.Header("X-API-Migration-Path", info.MigrationPath)
			}
		}

		c.Set("api_version", version)
		c.Next()
	}
}

func versionFromPath(path string) string {
	const prefix = "/api/"
	if strings.HasPrefix(path, prefix) {
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.IndexByte(rest, '/'); i > 0 {
			rest = rest[:i]
		}
		if len(rest) > 1 && rest[0] == 'v' {
			return rest
		}
	}
	return "v1"
}

// GetAPIVersion 从上下文取出请求的 API 版本,缺省为 v1
func GetAPIVersion(c *gin.Context) string {
	if v, ok := c.Get("api_version"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "v1"
}

// RegisterDeprecatedVersion 登记一个进入下线流程的版本
func RegisterDeprecatedVersion(info DeprecatedVersionInfo) {
	deprecatedMu.Lock()
	defer deprecatedMu.Unlock()
	deprecatedVersions[info.Version] = info
}
