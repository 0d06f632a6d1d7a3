package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/cache"
)

// HealthController 健康检查控制器
type HealthController struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewHealthController 创建健康检查控制器
// cache 为 nil 表示未启用 Redis,健康检查只覆盖数据库
func NewHealthController(db *gorm.DB, redisCache *cache.RedisCache) *HealthController {
	return &HealthController{
		db:    db,
		cache: redisCache,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 检查数据库连接
	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// 检查 Redis 连接
	// Redis 失效只降级缓存,不影响核心写入路径,因此不拉低整体状态
	if c.cache != nil {
		if err := c.cache.Ping(ctx.Request.Context()); err != nil {
			checks["redis"] = "degraded: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
