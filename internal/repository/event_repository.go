package repository

import (
	"errors"
	"strings"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository 事件仓储接口(追加式账本)
// 没有更新/删除方法: 事件的不可变性由仓储不暴露写路径、模型钩子
// 与数据库触发器三层共同保证
type EventRepository interface {
	Append(event *model.EventModel) error
	AppendBulk(events []*model.EventModel) error
	GetByID(id string, tenantID string) (*model.EventModel, error)
	GetLastEvent(subjectID string, tenantID string) (*model.EventModel, error)
	GetChain(subjectID string, tenantID string, ascending bool) ([]*model.EventModel, error)
	GetChainPage(subjectID string, tenantID string, offset int, limit int) ([]*model.EventModel, error)
	ListSubjectIDs(tenantID string) ([]string, error)
	CountByEventTypeAndSchemaVersion(tenantID string, eventType string, version int) (int64, error)
	CountByTenant(tenantID string) (int64, error)
	CountByEventType(tenantID string) (map[string]int64, error)
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
// 传入事务句柄即得到事务作用域内的仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Append 追加单个事件
// hash 全局唯一,重复插入或碰撞以唯一约束冲突形式暴露
func (r *eventRepository) Append(event *model.EventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.Create(event).Error
}

// AppendBulk 批量追加事件(单次写入)
func (r *eventRepository) AppendBulk(events []*model.EventModel) error {
	if len(events) == 0 {
		return nil
	}
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return err
		}
	}
	return r.db.Create(&events).Error
}

// GetByID 根据 ID 查找事件(租户隔离)
func (r *eventRepository) GetByID(id string, tenantID string) (*model.EventModel, error) {
	var event model.EventModel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetLastEvent 获取主体的链尾事件(event_time 最大者)
// 不存在事件时返回 (nil, nil)
func (r *eventRepository) GetLastEvent(subjectID string, tenantID string) (*model.EventModel, error) {
	var event model.EventModel
	err := r.db.
		Where("subject_id = ? AND tenant_id = ?", subjectID, tenantID).
		Order("event_time DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetChain 获取主体的完整事件链,按 event_time 排序
func (r *eventRepository) GetChain(subjectID string, tenantID string, ascending bool) ([]*model.EventModel, error) {
	order := "event_time ASC"
	if !ascending {
		order = "event_time DESC"
	}

	var events []*model.EventModel
	err := r.db.
		Where("subject_id = ? AND tenant_id = ?", subjectID, tenantID).
		Order(order).
		Find(&events).Error
	return events, err
}

// GetChainPage 分页获取主体事件链(升序),供可重入遍历使用
func (r *eventRepository) GetChainPage(subjectID string, tenantID string, offset int, limit int) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.
		Where("subject_id = ? AND tenant_id = ?", subjectID, tenantID).
		Order("event_time ASC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListSubjectIDs 列出租户下所有已有事件链的主体 ID
func (r *eventRepository) ListSubjectIDs(tenantID string) ([]string, error) {
	var subjectIDs []string
	err := r.db.Model(&model.EventModel{}).
		Where("tenant_id = ?", tenantID).
		Distinct("subject_id").
		Order("subject_id ASC").
		Pluck("subject_id", &subjectIDs).Error
	return subjectIDs, err
}

// CountByEventTypeAndSchemaVersion 统计引用指定 Schema 版本的事件数
// Schema 版本删除前调用,非零则拒绝删除
func (r *eventRepository) CountByEventTypeAndSchemaVersion(tenantID string, eventType string, version int) (int64, error) {
	var count int64
	err := r.db.Model(&model.EventModel{}).
		Where("tenant_id = ? AND event_type = ? AND schema_version = ?", tenantID, eventType, version).
		Count(&count).Error
	return count, err
}

// CountByTenant 统计租户事件总数
func (r *eventRepository) CountByTenant(tenantID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.EventModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

// CountByEventType 按事件类型统计租户事件数
func (r *eventRepository) CountByEventType(tenantID string) (map[string]int64, error) {
	type row struct {
		EventType string
		Count     int64
	}
	var rows []row
	err := r.db.Model(&model.EventModel{}).
		Select("event_type, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("event_type").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.EventType] = r.Count
	}
	return counts, nil
}

// IsUniqueViolation 判断是否为唯一约束冲突
// PostgreSQL 与 SQLite 的报错形式不同,统一在此识别
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// LockingClause 行级写锁子句 (SELECT ... FOR UPDATE)
// SQLite 无行锁,整库写串行化等价地满足同一需求
func LockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}
