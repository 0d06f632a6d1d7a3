package model

import (
	"errors"
	"time"
)

// SubjectModel 主体数据模型
// 账本中每条链都挂在一个主体之下;主体归属租户,
// 事件写入前必须确认主体存在且属于调用方租户
type SubjectModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Kind      string    `gorm:"type:varchar(64)" json:"kind"` // 主体类别,如 contact/account
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (SubjectModel) TableName() string {
	return "subjects"
}

// Validate 验证主体模型
func (sm *SubjectModel) Validate() error {
	if sm.ID == "" {
		return errors.New("subject ID is required")
	}
	if sm.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if sm.Name == "" {
		return errors.New("subject name is required")
	}
	return nil
}
