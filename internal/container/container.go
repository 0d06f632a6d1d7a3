package container

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/auth"
	"github.com/HSPiira/timeline-sub000/internal/cache"
	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/database"
	"github.com/HSPiira/timeline-sub000/internal/hash"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/service"
	"github.com/HSPiira/timeline-sub000/internal/websocket"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、缓存、服务与实时推送
type Container struct {
	db         *gorm.DB
	logger     *logrus.Logger
	redisCache *cache.RedisCache
	hub        *websocket.Hub
	validator  *auth.TokenValidator
	hashSvc    *hash.Service
	eventSvc   service.EventService
	schemaSvc  service.SchemaService
	subjectSvc service.SubjectService
	engine     service.WorkflowEngine
	verifySvc  service.VerificationService
	auditSvc   service.AuditLogService
	statsSvc   service.StatisticsService
	exportSvc  *service.ExportService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return newContainerWithDB(cfg, db, logger)
}

// NewContainerWithDB 用现成的数据库连接构建容器
// 测试用 sqlite 内存库时走这里,跳过连接重试
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*Container, error) {
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return newContainerWithDB(cfg, db, logger)
}

func newContainerWithDB(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*Container, error) {
	// 2. 初始化缓存: 启用 Redis 时读穿缓存走 Redis,否则退回进程内缓存
	var schemaCache cache.Cache
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisCache = cache.NewRedisCache(client, 5*time.Minute, logger)
		schemaCache = redisCache
	} else {
		schemaCache = cache.NewMemoryCache(5 * time.Minute)
	}

	// 3. 初始化哈希服务
	var algorithm hash.Algorithm
	switch cfg.Hash.Algorithm {
	case "sha512":
		algorithm = hash.SHA512{}
	default:
		algorithm = hash.SHA256{}
	}
	hashSvc := hash.NewService(algorithm)

	// 4. 初始化 Token 验证器
	validator := auth.NewTokenValidator(cfg.Auth.Issuer, cfg.Auth.Secret)

	// 5. 初始化实时推送 Hub
	hub := websocket.NewHub()

	// 6. 初始化服务层
	auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	schemaSvc := service.NewSchemaService(db, schemaCache, auditSvc, logger)
	subjectSvc := service.NewSubjectService(db, auditSvc, logger)
	eventSvc := service.NewEventService(db, hashSvc, schemaSvc, hub, logger)
	engine := service.NewWorkflowEngine(db, eventSvc, auditSvc, logger)
	eventSvc.SetTriggerProcessor(engine)
	verifySvc := service.NewVerificationService(db, hashSvc, logger)
	statsSvc := service.NewStatisticsService(db)
	exportSvc := service.NewExportService(db, "./exports")

	return &Container{
		db:         db,
		logger:     logger,
		redisCache: redisCache,
		hub:        hub,
		validator:  validator,
		hashSvc:    hashSvc,
		eventSvc:   eventSvc,
		schemaSvc:  schemaSvc,
		subjectSvc: subjectSvc,
		engine:     engine,
		verifySvc:  verifySvc,
		auditSvc:   auditSvc,
		statsSvc:   statsSvc,
		exportSvc:  exportSvc,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// RedisCache 获取 Redis 缓存,未启用时为 nil
func (c *Container) RedisCache() *cache.RedisCache {
	return c.redisCache
}

// Hub 获取实时推送 Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Validator 获取 Token 验证器
func (c *Container) Validator() *auth.TokenValidator {
	return c.validator
}

// HashService 获取哈希服务
func (c *Container) HashService() *hash.Service {
	return c.hashSvc
}

// EventService 获取事件编排服务
func (c *Container) EventService() service.EventService {
	return c.eventSvc
}

// SchemaService 获取 Schema 注册表服务
func (c *Container) SchemaService() service.SchemaService {
	return c.schemaSvc
}

// SubjectService 获取主体管理服务
func (c *Container) SubjectService() service.SubjectService {
	return c.subjectSvc
}

// WorkflowEngine 获取工作流引擎
func (c *Container) WorkflowEngine() service.WorkflowEngine {
	return c.engine
}

// VerificationService 获取链校验服务
func (c *Container) VerificationService() service.VerificationService {
	return c.verifySvc
}

// AuditLogService 获取审计日志服务
func (c *Container) AuditLogService() service.AuditLogService {
	return c.auditSvc
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statsSvc
}

// ExportService 获取账本导出服务
func (c *Container) ExportService() *service.ExportService {
	return c.exportSvc
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.redisCache != nil {
		c.redisCache.Close()
	}
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
