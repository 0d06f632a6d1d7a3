package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// EventController 事件控制器
// 账本的 HTTP 写入口与链查询入口,事件只增不改
type EventController struct {
	eventSvc service.EventService
}

// NewEventController 创建事件控制器
func NewEventController(eventSvc service.EventService) *EventController {
	return &EventController{eventSvc: eventSvc}
}

// bulkCreateRequest 批量创建请求体
type bulkCreateRequest struct {
	Events               []*service.EventCreate `json:"events" binding:"required"`
	SkipSchemaValidation bool                   `json:"skip_schema_validation"`
	TriggerWorkflows     *bool                  `json:"trigger_workflows"`
}

// Create 创建事件
// POST /api/v1/events
func (ctrl *EventController) Create(c *gin.Context) {
	var input service.EventCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	triggerWorkflows := true
	if v, ok := c.GetQuery("trigger_workflows"); ok && v == "false" {
		triggerWorkflows = false
	}

	tenantID := c.GetString("tenant_id")
	event, err := ctrl.eventSvc.CreateEvent(c.Request.Context(), tenantID, &input, triggerWorkflows)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, event)
}

// CreateBulk 批量创建事件
// POST /api/v1/events/bulk
// 整批原子提交: 任意一条失败则全部回滚。
// 批量是回填通道,缺省不触发工作流,避免历史数据重放自动化动作
func (ctrl *EventController) CreateBulk(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	triggerWorkflows := false
	if req.TriggerWorkflows != nil {
		triggerWorkflows = *req.TriggerWorkflows
	}

	tenantID := c.GetString("tenant_id")
	events, err := ctrl.eventSvc.CreateEventsBulk(c.Request.Context(), tenantID, req.Events, req.SkipSchemaValidation, triggerWorkflows)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// Get 查询事件
// GET /api/v1/events/:id
func (ctrl *EventController) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	event, err := ctrl.eventSvc.GetEvent(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, event)
}

// Reject 拒绝对已提交事件的修改与删除
// PUT/PATCH/DELETE /api/v1/events/:id
// 账本只增不改,这些方法注册为显式 403 而非 404,
// 让调用方拿到明确的不可变性语义而不是当作路由不存在
func (ctrl *EventController) Reject(c *gin.Context) {
	HandleServiceError(c, service.NewImmutabilityViolation("committed events cannot be modified or deleted", nil))
}

// GetChain 查询主体事件链
// GET /api/v1/subjects/:id/chain?order=desc
func (ctrl *EventController) GetChain(c *gin.Context) {
	ascending := c.DefaultQuery("order", "asc") != "desc"

	tenantID := c.GetString("tenant_id")
	events, err := ctrl.eventSvc.GetChain(c.Request.Context(), tenantID, c.Param("id"), ascending)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"subject_id": c.Param("id"),
		"count":      len(events),
		"events":     events,
	})
}
