package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// SubjectController 主体控制器
type SubjectController struct {
	subjectSvc service.SubjectService
}

// NewSubjectController 创建主体控制器
func NewSubjectController(subjectSvc service.SubjectService) *SubjectController {
	return &SubjectController{subjectSvc: subjectSvc}
}

// Create 注册主体
// POST /api/v1/subjects
func (ctrl *SubjectController) Create(c *gin.Context) {
	var input service.SubjectCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tenantID := c.GetString("tenant_id")
	subject, err := ctrl.subjectSvc.Create(c.Request.Context(), tenantID, &input)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, subject)
}

// List 分页列出主体
// GET /api/v1/subjects
func (ctrl *SubjectController) List(c *gin.Context) {
	page, pageSize := parsePagination(c)

	tenantID := c.GetString("tenant_id")
	subjects, err := ctrl.subjectSvc.List(c.Request.Context(), tenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Paginated(c, subjects, PaginationInfo{Page: page, PageSize: pageSize})
}

// Get 查询主体
// GET /api/v1/subjects/:id
func (ctrl *SubjectController) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	subject, err := ctrl.subjectSvc.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, subject)
}
