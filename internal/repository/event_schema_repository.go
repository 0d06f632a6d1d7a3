package repository

import (
	"errors"
	"time"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
)

// EventSchemaRepository 事件 Schema 仓储接口
// schema_definition 创建后只读,仓储只允许切换 is_active
type EventSchemaRepository interface {
	Create(schema *model.EventSchemaModel) error
	GetByID(id string, tenantID string) (*model.EventSchemaModel, error)
	GetNextVersion(tenantID string, eventType string) (int, error)
	GetActiveSchema(tenantID string, eventType string) (*model.EventSchemaModel, error)
	GetByVersion(tenantID string, eventType string, version int) (*model.EventSchemaModel, error)
	ListForEventType(tenantID string, eventType string) ([]*model.EventSchemaModel, error)
	ListForTenant(tenantID string, offset int, limit int) ([]*model.EventSchemaModel, error)
	SetActive(id string, tenantID string, active bool) error
	DeactivateAllForEventType(tenantID string, eventType string) error
	Delete(id string, tenantID string) error
}

// eventSchemaRepository 事件 Schema 仓储实现
type eventSchemaRepository struct {
	db *gorm.DB
}

// NewEventSchemaRepository 创建事件 Schema 仓储
func NewEventSchemaRepository(db *gorm.DB) EventSchemaRepository {
	return &eventSchemaRepository{db: db}
}

// Create 保存新 Schema 版本
// (tenant_id, event_type, version) 唯一约束保证并发创建时只有一个成功
func (r *eventSchemaRepository) Create(schema *model.EventSchemaModel) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	return r.db.Create(schema).Error
}

// GetByID 根据 ID 查找 Schema(租户隔离)
func (r *eventSchemaRepository) GetByID(id string, tenantID string) (*model.EventSchemaModel, error) {
	var schema model.EventSchemaModel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&schema).Error
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// GetNextVersion 获取下一个版本号(当前最大值加一,从 1 起)
func (r *eventSchemaRepository) GetNextVersion(tenantID string, eventType string) (int, error) {
	var maxVersion *int
	err := r.db.Model(&model.EventSchemaModel{}).
		Where("tenant_id = ? AND event_type = ?", tenantID, eventType).
		Select("MAX(version)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	if maxVersion == nil {
		return 1, nil
	}
	return *maxVersion + 1, nil
}

// GetActiveSchema 获取当前激活版本
// 没有激活版本时返回 (nil, nil)
func (r *eventSchemaRepository) GetActiveSchema(tenantID string, eventType string) (*model.EventSchemaModel, error) {
	var schema model.EventSchemaModel
	err := r.db.
		Where("tenant_id = ? AND event_type = ? AND is_active = ?", tenantID, eventType, true).
		Order("version DESC").
		First(&schema).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// GetByVersion 获取指定版本
// 版本不存在时返回 (nil, nil)
func (r *eventSchemaRepository) GetByVersion(tenantID string, eventType string, version int) (*model.EventSchemaModel, error) {
	var schema model.EventSchemaModel
	err := r.db.
		Where("tenant_id = ? AND event_type = ? AND version = ?", tenantID, eventType, version).
		First(&schema).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// ListForEventType 列出事件类型的所有版本(版本降序)
func (r *eventSchemaRepository) ListForEventType(tenantID string, eventType string) ([]*model.EventSchemaModel, error) {
	var schemas []*model.EventSchemaModel
	err := r.db.
		Where("tenant_id = ? AND event_type = ?", tenantID, eventType).
		Order("version DESC").
		Find(&schemas).Error
	return schemas, err
}

// ListForTenant 分页列出租户的所有 Schema
func (r *eventSchemaRepository) ListForTenant(tenantID string, offset int, limit int) ([]*model.EventSchemaModel, error) {
	var schemas []*model.EventSchemaModel
	err := r.db.
		Where("tenant_id = ?", tenantID).
		Order("event_type ASC, version DESC").
		Offset(offset).
		Limit(limit).
		Find(&schemas).Error
	return schemas, err
}

// SetActive 切换激活状态,不触碰 schema_definition
func (r *eventSchemaRepository) SetActive(id string, tenantID string, active bool) error {
	result := r.db.Model(&model.EventSchemaModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateAllForEventType 取消事件类型下所有版本的激活状态
// 与新版本插入同处一个事务,保证激活唯一性
func (r *eventSchemaRepository) DeactivateAllForEventType(tenantID string, eventType string) error {
	return r.db.Model(&model.EventSchemaModel{}).
		Where("tenant_id = ? AND event_type = ? AND is_active = ?", tenantID, eventType, true).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

// Delete 删除 Schema 版本
// 引用计数检查由服务层负责(见 SchemaService.DeleteVersion)
func (r *eventSchemaRepository) Delete(id string, tenantID string) error {
	result := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&model.EventSchemaModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
