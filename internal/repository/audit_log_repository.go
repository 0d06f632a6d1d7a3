package repository

import (
	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	ListForTenant(tenantID string, offset int, limit int) ([]*model.AuditLogModel, error)
	ListForResource(tenantID string, resourceType string, resourceID string) ([]*model.AuditLogModel, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 保存审计日志
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.Create(log).Error
}

// ListForTenant 分页列出租户审计日志(时间降序)
func (r *auditLogRepository) ListForTenant(tenantID string, offset int, limit int) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// ListForResource 列出指定资源的审计日志(时间降序)
func (r *auditLogRepository) ListForResource(tenantID string, resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.
		Where("tenant_id = ? AND resource_type = ? AND resource_id = ?", tenantID, resourceType, resourceID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}
