package api

import (
	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// VerificationController 链校验控制器
type VerificationController struct {
	verifySvc service.VerificationService
}

// NewVerificationController 创建链校验控制器
func NewVerificationController(verifySvc service.VerificationService) *VerificationController {
	return &VerificationController{verifySvc: verifySvc}
}

// VerifySubject 校验单条主体链
// POST /api/v1/subjects/:id/verify
func (ctrl *VerificationController) VerifySubject(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	report, err := ctrl.verifySvc.VerifySubjectChain(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, report)
}

// VerifyTenant 校验租户全部主体链
// POST /api/v1/verify
func (ctrl *VerificationController) VerifyTenant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	report, err := ctrl.verifySvc.VerifyTenantChains(c.Request.Context(), tenantID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, report)
}
