package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrEventImmutable 事件不可变错误
// 事件一旦提交即不可修改或删除,篡改历史只能通过追加补偿事件
var ErrEventImmutable = errors.New("events are immutable: create a compensating event instead")

// GenesisHash 创世哨兵值
// 链上第一个事件没有前驱,参与哈希计算时使用该固定哨兵,
// 避免 "无前驱" 与 "前驱哈希恰好为空串" 产生碰撞
const GenesisHash = "GENESIS"

// EventModel 事件数据模型(追加式账本记录)
type EventModel struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID      string          `gorm:"type:varchar(64);not null;index:ix_events_tenant_subject" json:"tenant_id"`
	SubjectID     string          `gorm:"type:varchar(64);not null;index:ix_events_tenant_subject" json:"subject_id"`
	EventType     string          `gorm:"type:varchar(64);not null;index" json:"event_type"`
	SchemaVersion int             `gorm:"not null" json:"schema_version"` // 创建时校验所用的确切版本号,永不重算
	EventTime     time.Time       `gorm:"not null;index:ix_events_subject_time" json:"event_time"`
	Payload       json.RawMessage `gorm:"type:jsonb;not null" json:"payload"`
	PreviousHash  *string         `gorm:"type:varchar(128)" json:"previous_hash"` // 创世事件为 NULL
	Hash          string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"hash"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if em.SubjectID == "" {
		return errors.New("subject ID is required")
	}
	if em.EventType == "" {
		return errors.New("event type is required")
	}
	if em.SchemaVersion <= 0 {
		return errors.New("schema version must be positive")
	}
	if em.EventTime.IsZero() {
		return errors.New("event time is required")
	}
	if len(em.Payload) == 0 {
		return errors.New("event payload is required")
	}
	if em.Hash == "" {
		return errors.New("event hash is required")
	}
	return nil
}

// PayloadMap 反序列化 payload 为 map
func (em *EventModel) PayloadMap() (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(em.Payload, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// BeforeUpdate GORM 钩子: 拒绝任何事件更新
// 数据库层的触发器是第二道防线,见 database.CreateImmutabilityTriggers
func (em *EventModel) BeforeUpdate(tx *gorm.DB) error {
	return ErrEventImmutable
}

// BeforeDelete GORM 钩子: 拒绝任何事件删除
func (em *EventModel) BeforeDelete(tx *gorm.DB) error {
	return ErrEventImmutable
}
