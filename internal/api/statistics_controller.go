package api

import (
	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statsSvc service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statsSvc service.StatisticsService) *StatisticsController {
	return &StatisticsController{statsSvc: statsSvc}
}

// Get 查询租户统计
// GET /api/v1/statistics
func (ctrl *StatisticsController) Get(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	stats, err := ctrl.statsSvc.GetTenantStatistics(c.Request.Context(), tenantID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, stats)
}
