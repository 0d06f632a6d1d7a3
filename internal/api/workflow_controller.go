package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// WorkflowController 工作流控制器
type WorkflowController struct {
	engine service.WorkflowEngine
}

// NewWorkflowController 创建工作流控制器
func NewWorkflowController(engine service.WorkflowEngine) *WorkflowController {
	return &WorkflowController{engine: engine}
}

// Create 创建工作流
// POST /api/v1/workflows
func (ctrl *WorkflowController) Create(c *gin.Context) {
	var input service.WorkflowCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tenantID := c.GetString("tenant_id")
	workflow, err := ctrl.engine.CreateWorkflow(c.Request.Context(), tenantID, &input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, workflow)
}

// List 分页列出工作流
// GET /api/v1/workflows
func (ctrl *WorkflowController) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	tenantID := c.GetString("tenant_id")
	workflows, err := ctrl.engine.ListWorkflows(c.Request.Context(), tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, workflows, PaginationInfo{Page: page, PageSize: pageSize})
}

// Get 查询工作流
// GET /api/v1/workflows/:id
func (ctrl *WorkflowController) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	workflow, err := ctrl.engine.GetWorkflow(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, workflow)
}

// Update 更新工作流
// PUT /api/v1/workflows/:id
func (ctrl *WorkflowController) Update(c *gin.Context) {
	var input service.WorkflowUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tenantID := c.GetString("tenant_id")
	workflow, err := ctrl.engine.UpdateWorkflow(c.Request.Context(), tenantID, c.Param("id"), &input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, workflow)
}

// Delete 删除工作流
// DELETE /api/v1/workflows/:id
func (ctrl *WorkflowController) Delete(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if err := ctrl.engine.DeleteWorkflow(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// ListExecutions 列出工作流执行记录
// GET /api/v1/workflows/:id/executions
func (ctrl *WorkflowController) ListExecutions(c *gin.Context) {
	page, pageSize := parsePagination(c)

	tenantID := c.GetString("tenant_id")
	executions, err := ctrl.engine.ListExecutions(c.Request.Context(), tenantID, c.Param("id"), (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, executions, PaginationInfo{Page: page, PageSize: pageSize})
}

// GetExecution 查询执行记录
// GET /api/v1/executions/:id
func (ctrl *WorkflowController) GetExecution(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	execution, err := ctrl.engine.GetExecution(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, execution)
}
