package repository

import (
	"time"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
)

// WorkflowRepository 工作流定义仓储接口
type WorkflowRepository interface {
	Save(workflow *model.WorkflowModel) error
	FindByID(id string, tenantID string) (*model.WorkflowModel, error)
	FindMatching(tenantID string, eventType string) ([]*model.WorkflowModel, error)
	ListForTenant(tenantID string, offset int, limit int) ([]*model.WorkflowModel, error)
	Update(workflow *model.WorkflowModel) error
	SoftDelete(id string, tenantID string) error
}

// workflowRepository 工作流仓储实现
type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository 创建工作流仓储
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

// Save 保存工作流
func (r *workflowRepository) Save(workflow *model.WorkflowModel) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	return r.db.Create(workflow).Error
}

// FindByID 根据 ID 查找工作流(含已软删除)
func (r *workflowRepository) FindByID(id string, tenantID string) (*model.WorkflowModel, error) {
	var workflow model.WorkflowModel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&workflow).Error
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// FindMatching 查找触发类型匹配的激活工作流
// 按 execution_order 升序返回,软删除的工作流不参与匹配
func (r *workflowRepository) FindMatching(tenantID string, eventType string) ([]*model.WorkflowModel, error) {
	var workflows []*model.WorkflowModel
	err := r.db.
		Where("tenant_id = ? AND trigger_event_type = ? AND is_active = ? AND deleted_at IS NULL",
			tenantID, eventType, true).
		Order("execution_order ASC").
		Find(&workflows).Error
	return workflows, err
}

// ListForTenant 分页列出租户的工作流(不含软删除)
func (r *workflowRepository) ListForTenant(tenantID string, offset int, limit int) ([]*model.WorkflowModel, error) {
	var workflows []*model.WorkflowModel
	err := r.db.
		Where("tenant_id = ? AND deleted_at IS NULL", tenantID).
		Order("execution_order ASC, created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&workflows).Error
	return workflows, err
}

// Update 更新工作流定义
func (r *workflowRepository) Update(workflow *model.WorkflowModel) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	workflow.UpdatedAt = time.Now()
	return r.db.Save(workflow).Error
}

// SoftDelete 软删除工作流
func (r *workflowRepository) SoftDelete(id string, tenantID string) error {
	now := time.Now()
	result := r.db.Model(&model.WorkflowModel{}).
		Where("id = ? AND tenant_id = ? AND deleted_at IS NULL", id, tenantID).
		Updates(map[string]interface{}{"deleted_at": &now, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
