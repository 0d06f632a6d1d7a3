package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
)

// TenantStatistics 租户运行统计
type TenantStatistics struct {
	TenantID             string           `json:"tenant_id"`
	TotalEvents          int64            `json:"total_events"`
	TotalSubjects        int64            `json:"total_subjects"`
	EventsByType         map[string]int64 `json:"events_by_type"`
	ExecutionsByStatus   map[string]int64 `json:"executions_by_status"`
	ExecutionSuccessRate float64          `json:"execution_success_rate"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetTenantStatistics(ctx context.Context, tenantID string) (*TenantStatistics, error)
}

// statisticsService 统计服务实现
type statisticsService struct {
	db *gorm.DB
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetTenantStatistics 汇总租户的事件、主体与工作流执行统计
func (s *statisticsService) GetTenantStatistics(ctx context.Context, tenantID string) (*TenantStatistics, error) {
	eventRepo := repository.NewEventRepository(s.db.WithContext(ctx))
	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	executionRepo := repository.NewWorkflowExecutionRepository(s.db.WithContext(ctx))

	totalEvents, err := eventRepo.CountByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	eventsByType, err := eventRepo.CountByEventType(tenantID)
	if err != nil {
		return nil, err
	}
	totalSubjects, err := subjectRepo.CountForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	executionsByStatus, err := executionRepo.CountByStatus(tenantID)
	if err != nil {
		return nil, err
	}

	var finished, succeeded int64
	for status, count := range executionsByStatus {
		switch status {
		case model.ExecutionStatusCompleted:
			finished += count
			succeeded += count
		case model.ExecutionStatusFailed:
			finished += count
		}
	}
	successRate := 0.0
	if finished > 0 {
		successRate = float64(succeeded) / float64(finished)
	}

	return &TenantStatistics{
		TenantID:             tenantID,
		TotalEvents:          totalEvents,
		TotalSubjects:        totalSubjects,
		EventsByType:         eventsByType,
		ExecutionsByStatus:   executionsByStatus,
		ExecutionSuccessRate: successRate,
		GeneratedAt:          time.Now().UTC(),
	}, nil
}
