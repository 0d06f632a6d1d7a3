package repository

import (
	"time"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
)

// WorkflowExecutionRepository 工作流执行记录仓储接口(追加式审计)
type WorkflowExecutionRepository interface {
	Save(execution *model.WorkflowExecutionModel) error
	Finish(execution *model.WorkflowExecutionModel) error
	FindByID(id string, tenantID string) (*model.WorkflowExecutionModel, error)
	ListForWorkflow(workflowID string, tenantID string, offset int, limit int) ([]*model.WorkflowExecutionModel, error)
	CountSince(workflowID string, tenantID string, since time.Time) (int64, error)
	CountByStatus(tenantID string) (map[string]int64, error)
}

// workflowExecutionRepository 工作流执行记录仓储实现
type workflowExecutionRepository struct {
	db *gorm.DB
}

// NewWorkflowExecutionRepository 创建工作流执行记录仓储
func NewWorkflowExecutionRepository(db *gorm.DB) WorkflowExecutionRepository {
	return &workflowExecutionRepository{db: db}
}

// Save 保存执行记录
func (r *workflowExecutionRepository) Save(execution *model.WorkflowExecutionModel) error {
	if err := execution.Validate(); err != nil {
		return err
	}
	return r.db.Create(execution).Error
}

// Finish 回写执行终态
// 只更新引擎自身拥有的终态字段,执行记录对其他组件只读
func (r *workflowExecutionRepository) Finish(execution *model.WorkflowExecutionModel) error {
	return r.db.Model(&model.WorkflowExecutionModel{}).
		Where("id = ?", execution.ID).
		Updates(map[string]interface{}{
			"status":           execution.Status,
			"completed_at":     execution.CompletedAt,
			"actions_executed": execution.ActionsExecuted,
			"actions_failed":   execution.ActionsFailed,
			"execution_log":    execution.ExecutionLog,
			"error_message":    execution.ErrorMessage,
		}).Error
}

// FindByID 根据 ID 查找执行记录
func (r *workflowExecutionRepository) FindByID(id string, tenantID string) (*model.WorkflowExecutionModel, error) {
	var execution model.WorkflowExecutionModel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&execution).Error
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// ListForWorkflow 分页列出工作流的执行历史(时间降序)
func (r *workflowExecutionRepository) ListForWorkflow(workflowID string, tenantID string, offset int, limit int) ([]*model.WorkflowExecutionModel, error) {
	var executions []*model.WorkflowExecutionModel
	err := r.db.
		Where("workflow_id = ? AND tenant_id = ?", workflowID, tenantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&executions).Error
	return executions, err
}

// CountSince 统计指定时间之后的执行次数
// 引擎用于实施 max_executions_per_day 滚动日配额
func (r *workflowExecutionRepository) CountSince(workflowID string, tenantID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.WorkflowExecutionModel{}).
		Where("workflow_id = ? AND tenant_id = ? AND created_at >= ?", workflowID, tenantID, since).
		Count(&count).Error
	return count, err
}

// CountByStatus 按状态统计租户的执行记录数
func (r *workflowExecutionRepository) CountByStatus(tenantID string) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&model.WorkflowExecutionModel{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
