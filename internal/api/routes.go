package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/auth"
	"github.com/HSPiira/timeline-sub000/internal/cache"
	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/service"
	"github.com/HSPiira/timeline-sub000/internal/websocket"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Validator  *auth.TokenValidator
	Hub        *websocket.Hub
	EventSvc   service.EventService
	SchemaSvc  service.SchemaService
	SubjectSvc service.SubjectService
	Engine     service.WorkflowEngine
	VerifySvc  service.VerificationService
	AuditSvc   service.AuditLogService
	StatsSvc   service.StatisticsService
	CORS       *config.CORSConfig
	Server     *config.ServerConfig
	Tracing    bool
}

// SetupRoutes 配置路由
func SetupRoutes(deps *RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	router.Use(HTTPSRedirectMiddlewareWithConfig(deps.Server != nil && deps.Server.ForceHTTPS))
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(VersionMiddleware())
	router.Use(APIMetricsMiddleware())

	// 响应超时累计到阈值时记一条告警日志
	slaAlerts := NewSLAAlertManager()
	slaAlerts.SetAlertThreshold("event_append", 10)
	slaAlerts.SetAlertThreshold("bulk_append", 5)
	slaAlerts.OnAlert(func(operation string, violations []SLAViolation) {
		GetLogger().WithField("operation", operation).
			WithField("violations", len(violations)).
			Warn("SLA violation threshold reached")
	})
	router.Use(SLAMonitorMiddlewareWithAlert(nil, slaAlerts))
	if deps.Tracing {
		router.Use(TracingMiddleware())
	}
	if deps.Server != nil && deps.Server.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(deps.Server.RateLimitRPS, deps.Server.RateLimitBurst))
	}
	if deps.CORS != nil {
		router.Use(CORSMiddleware(deps.CORS.AllowedOrigins))
	}

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.RedisCache)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由: 按主体订阅事件流
	if deps.Hub != nil && deps.Validator != nil {
		router.GET("/ws/subjects/:id", websocket.WebSocketHandler(deps.Hub, deps.Validator))
	}

	// SSE 路由
	if deps.Validator != nil {
		router.GET("/sse/subjects/:id", SSEHandler(deps.Validator))
	}

	// API v1 路由组,全部接口要求认证
	v1 := router.Group("/api/v1")
	if deps.Validator != nil {
		v1.Use(deps.Validator.Middleware())
	}
	{
		// 主体管理与链查询
		subjectController := NewSubjectController(deps.SubjectSvc)
		eventController := NewEventController(deps.EventSvc)
		verificationController := NewVerificationController(deps.VerifySvc)
		subjects := v1.Group("/subjects")
		{
			subjects.POST("", subjectController.Create)
			subjects.GET("", subjectController.List)
			subjects.GET("/:id", subjectController.Get)
			subjects.GET("/:id/chain", eventController.GetChain)
			subjects.POST("/:id/verify", verificationController.VerifySubject)
		}

		// 事件追加与查询
		events := v1.Group("/events")
		{
			events.POST("", eventController.Create)
			events.POST("/bulk", eventController.CreateBulk)
			events.GET("/:id", eventController.Get)
			events.PUT("/:id", eventController.Reject)
			events.PATCH("/:id", eventController.Reject)
			events.DELETE("/:id", eventController.Reject)
		}

		// Schema 注册表
		schemaController := NewSchemaController(deps.SchemaSvc)
		schemas := v1.Group("/schemas")
		{
			schemas.POST("", schemaController.Create)
			schemas.GET("", schemaController.List)
			schemas.GET("/:id", schemaController.Get)
			schemas.POST("/:id/activate", schemaController.Activate)
			schemas.POST("/:id/deactivate", schemaController.Deactivate)
			schemas.DELETE("/:id", schemaController.Delete)
			schemas.GET("/types/:type/versions", schemaController.ListVersions)
			schemas.GET("/types/:type/active", schemaController.GetActive)
		}

		// 工作流管理
		workflowController := NewWorkflowController(deps.Engine)
		workflows := v1.Group("/workflows")
		{
			workflows.POST("", workflowController.Create)
			workflows.GET("", workflowController.List)
			workflows.GET("/:id", workflowController.Get)
			workflows.PUT("/:id", workflowController.Update)
			workflows.DELETE("/:id", workflowController.Delete)
			workflows.GET("/:id/executions", workflowController.ListExecutions)
		}
		v1.GET("/executions/:id", workflowController.GetExecution)

		// 租户级链校验
		v1.POST("/verify", verificationController.VerifyTenant)

		// 审计日志
		auditController := NewAuditController(deps.AuditSvc)
		v1.GET("/audit-logs", auditController.List)
		v1.GET("/audit-logs/:resource_type/:resource_id", auditController.ListForResource)

		// 统计
		statisticsController := NewStatisticsController(deps.StatsSvc)
		v1.GET("/statistics", statisticsController.Get)
	}

	// 未匹配路由返回 JSON 404 而不是默认 HTML
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
