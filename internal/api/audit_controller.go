package api

import (
	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// AuditController 审计日志控制器
type AuditController struct {
	auditSvc service.AuditLogService
}

// NewAuditController 创建审计日志控制器
func NewAuditController(auditSvc service.AuditLogService) *AuditController {
	return &AuditController{auditSvc: auditSvc}
}

// List 分页列出租户审计日志
// GET /api/v1/audit-logs
func (ctrl *AuditController) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	tenantID := c.GetString("tenant_id")
	logs, err := ctrl.auditSvc.ListForTenant(c.Request.Context(), tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, logs, PaginationInfo{Page: page, PageSize: pageSize})
}

// ListForResource 列出指定资源的审计日志
// GET /api/v1/audit-logs/:resource_type/:resource_id
func (ctrl *AuditController) ListForResource(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	logs, err := ctrl.auditSvc.ListForResource(c.Request.Context(), tenantID, c.Param("resource_type"), c.Param("resource_id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, logs)
}
