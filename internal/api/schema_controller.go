package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// SchemaController Schema 注册表控制器
type SchemaController struct {
	schemaSvc service.SchemaService
}

// NewSchemaController 创建 Schema 注册表控制器
func NewSchemaController(schemaSvc service.SchemaService) *SchemaController {
	return &SchemaController{schemaSvc: schemaSvc}
}

// Create 注册新 Schema 版本
// POST /api/v1/schemas
func (ctrl *SchemaController) Create(c *gin.Context) {
	var input service.SchemaCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tenantID := c.GetString("tenant_id")
	created, err := ctrl.schemaSvc.CreateVersion(c.Request.Context(), tenantID, &input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, created)
}

// List 分页列出租户 Schema
// GET /api/v1/schemas?page=1&page_size=20
func (ctrl *SchemaController) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	tenantID := c.GetString("tenant_id")
	schemas, err := ctrl.schemaSvc.ListForTenant(c.Request.Context(), tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, schemas, PaginationInfo{Page: page, PageSize: pageSize})
}

// Get 根据 ID 查询 Schema 版本
// GET /api/v1/schemas/:id
func (ctrl *SchemaController) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	record, err := ctrl.schemaSvc.GetByID(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, record)
}

// ListVersions 列出事件类型的全部版本
// GET /api/v1/schemas/types/:type/versions
func (ctrl *SchemaController) ListVersions(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	versions, err := ctrl.schemaSvc.ListVersions(c.Request.Context(), tenantID, c.Param("type"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, versions)
}

// GetActive 查询事件类型的当前激活版本
// GET /api/v1/schemas/types/:type/active
func (ctrl *SchemaController) GetActive(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	active, err := ctrl.schemaSvc.GetActiveSchema(c.Request.Context(), tenantID, c.Param("type"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if active == nil {
		Error(c, http.StatusNotFound, "not found", "no active schema for event type "+c.Param("type"))
		return
	}
	Success(c, active)
}

// Activate 激活 Schema 版本
// POST /api/v1/schemas/:id/activate
func (ctrl *SchemaController) Activate(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	record, err := ctrl.schemaSvc.Activate(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, record)
}

// Deactivate 停用 Schema 版本
// POST /api/v1/schemas/:id/deactivate
func (ctrl *SchemaController) Deactivate(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	record, err := ctrl.schemaSvc.Deactivate(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, record)
}

// Delete 删除未被引用的 Schema 版本
// DELETE /api/v1/schemas/:id
func (ctrl *SchemaController) Delete(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if err := ctrl.schemaSvc.DeleteVersion(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// parsePagination 解析分页参数,越界取默认值
func parsePagination(c *gin.Context) (page int, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
