package model

import (
	"encoding/json"
	"errors"
	"time"
)

// EventSchemaModel 事件负载 Schema 数据模型
// schema_definition 创建后不可变,演进只能通过递增版本号;
// 同一 (tenant_id, event_type) 任意时刻至多一个激活版本
type EventSchemaModel struct {
	ID               string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID         string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_schema_tenant_type_version" json:"tenant_id"`
	EventType        string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_schema_tenant_type_version" json:"event_type"`
	Version          int             `gorm:"not null;uniqueIndex:uq_schema_tenant_type_version" json:"version"`
	SchemaDefinition json.RawMessage `gorm:"type:jsonb;not null" json:"schema_definition"`
	IsActive         bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedBy        string          `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (EventSchemaModel) TableName() string {
	return "event_schemas"
}

// Validate 验证 Schema 模型
func (sm *EventSchemaModel) Validate() error {
	if sm.ID == "" {
		return errors.New("schema ID is required")
	}
	if sm.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if sm.EventType == "" {
		return errors.New("event type is required")
	}
	if sm.Version <= 0 {
		return errors.New("schema version must be positive")
	}
	if len(sm.SchemaDefinition) == 0 {
		return errors.New("schema definition is required")
	}
	return nil
}
