package model

import (
	"encoding/json"
	"errors"
	"time"
)

// 工作流执行状态
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// WorkflowModel 工作流定义数据模型
// 由租户配置管理,触发条件为触发事件 payload 字段的扁平等值断言
type WorkflowModel struct {
	ID                  string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID            string          `gorm:"type:varchar(64);not null;index:ix_workflows_tenant_trigger" json:"tenant_id"`
	Name                string          `gorm:"type:varchar(255);not null" json:"name"`
	Description         string          `gorm:"type:text" json:"description"`
	TriggerEventType    string          `gorm:"type:varchar(64);not null;index:ix_workflows_tenant_trigger" json:"trigger_event_type"`
	TriggerConditions   json.RawMessage `gorm:"type:jsonb" json:"trigger_conditions"`      // {"payload.<field>": value, ...},为空表示总是匹配
	Actions             json.RawMessage `gorm:"type:jsonb;not null" json:"actions"`        // [{"type": ..., "params": {...}}, ...]
	ExecutionOrder      int             `gorm:"not null;default:0" json:"execution_order"` // 越小越先执行
	MaxExecutionsPerDay *int            `json:"max_executions_per_day"`                    // NULL 表示不限制
	IsActive            bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedBy           string          `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"not null" json:"updated_at"`
	DeletedAt           *time.Time      `gorm:"index" json:"deleted_at"` // 软删除标记
}

// TableName 指定表名
func (WorkflowModel) TableName() string {
	return "workflows"
}

// Validate 验证工作流模型
func (wm *WorkflowModel) Validate() error {
	if wm.ID == "" {
		return errors.New("workflow ID is required")
	}
	if wm.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if wm.Name == "" {
		return errors.New("workflow name is required")
	}
	if wm.TriggerEventType == "" {
		return errors.New("trigger event type is required")
	}
	if len(wm.Actions) == 0 {
		return errors.New("workflow actions are required")
	}
	return nil
}

// WorkflowAction 工作流动作定义
type WorkflowAction struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

// ActionList 反序列化动作列表
func (wm *WorkflowModel) ActionList() ([]WorkflowAction, error) {
	var actions []WorkflowAction
	if err := json.Unmarshal(wm.Actions, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// ConditionMap 反序列化触发条件
func (wm *WorkflowModel) ConditionMap() (map[string]interface{}, error) {
	if len(wm.TriggerConditions) == 0 {
		return nil, nil
	}
	var conditions map[string]interface{}
	if err := json.Unmarshal(wm.TriggerConditions, &conditions); err != nil {
		return nil, err
	}
	return conditions, nil
}

// WorkflowExecutionModel 工作流执行审计记录(追加式)
type WorkflowExecutionModel struct {
	ID                   string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID             string          `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	WorkflowID           string          `gorm:"type:varchar(64);not null;index" json:"workflow_id"`
	TriggeredByEventID   string          `gorm:"type:varchar(64);index" json:"triggered_by_event_id"`
	TriggeredBySubjectID string          `gorm:"type:varchar(64);index" json:"triggered_by_subject_id"`
	Status               string          `gorm:"type:varchar(32);not null;default:'pending'" json:"status"` // pending/running/completed/failed
	StartedAt            *time.Time      `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at"`
	ActionsExecuted      int             `gorm:"not null;default:0" json:"actions_executed"`
	ActionsFailed        int             `gorm:"not null;default:0" json:"actions_failed"`
	ExecutionLog         json.RawMessage `gorm:"type:jsonb" json:"execution_log"` // 按动作顺序记录的结果
	ErrorMessage         string          `gorm:"type:text" json:"error_message"`
	CreatedAt            time.Time       `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (WorkflowExecutionModel) TableName() string {
	return "workflow_executions"
}

// Validate 验证执行记录模型
func (em *WorkflowExecutionModel) Validate() error {
	if em.ID == "" {
		return errors.New("execution ID is required")
	}
	if em.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if em.WorkflowID == "" {
		return errors.New("workflow ID is required")
	}
	if em.Status == "" {
		em.Status = ExecutionStatusPending
	}
	return nil
}

// ActionOutcome 单个动作的执行结果
type ActionOutcome struct {
	Action  string `json:"action"`
	Status  string `json:"status"` // success/failed/skipped
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
