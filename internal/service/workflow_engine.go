package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/metrics"
	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/utils"
)

// ActionCreateEvent 动作类型: 在账本上追加一条新事件
// 动作类型是封闭枚举,未知类型按 skipped 记录而不是让整次执行失败
const ActionCreateEvent = "create_event"

// WorkflowCreate 创建工作流的输入
type WorkflowCreate struct {
	Name                string                 `json:"name" binding:"required"`
	Description         string                 `json:"description"`
	TriggerEventType    string                 `json:"trigger_event_type" binding:"required"`
	TriggerConditions   map[string]interface{} `json:"trigger_conditions"`
	Actions             []model.WorkflowAction `json:"actions" binding:"required"`
	ExecutionOrder      int                    `json:"execution_order"`
	MaxExecutionsPerDay *int                   `json:"max_executions_per_day"`
	IsActive            *bool                  `json:"is_active"`
}

// WorkflowUpdate 更新工作流的输入,nil 字段保持不变
type WorkflowUpdate struct {
	Name                *string                `json:"name"`
	Description         *string                `json:"description"`
	TriggerConditions   map[string]interface{} `json:"trigger_conditions"`
	Actions             []model.WorkflowAction `json:"actions"`
	ExecutionOrder      *int                   `json:"execution_order"`
	MaxExecutionsPerDay *int                   `json:"max_executions_per_day"`
	IsActive            *bool                  `json:"is_active"`
}

// WorkflowEngine 工作流引擎接口
// 管理工作流定义,并在事件提交后按定义执行自动化动作
type WorkflowEngine interface {
	TriggerProcessor
	CreateWorkflow(ctx context.Context, tenantID string, input *WorkflowCreate) (*model.WorkflowModel, error)
	GetWorkflow(ctx context.Context, tenantID string, id string) (*model.WorkflowModel, error)
	ListWorkflows(ctx context.Context, tenantID string, offset int, limit int) ([]*model.WorkflowModel, error)
	UpdateWorkflow(ctx context.Context, tenantID string, id string, input *WorkflowUpdate) (*model.WorkflowModel, error)
	DeleteWorkflow(ctx context.Context, tenantID string, id string) error
	GetExecution(ctx context.Context, tenantID string, id string) (*model.WorkflowExecutionModel, error)
	ListExecutions(ctx context.Context, tenantID string, workflowID string, offset int, limit int) ([]*model.WorkflowExecutionModel, error)
}

// workflowEngine 工作流引擎实现
type workflowEngine struct {
	db       *gorm.DB
	eventSvc EventService
	auditSvc AuditLogService
	logger   *logrus.Logger
}

// NewWorkflowEngine 创建工作流引擎
// 引擎与事件服务互相引用: 事件提交触发引擎,引擎的 create_event 动作又写回账本,
// 由容器先建事件服务再注入引擎
func NewWorkflowEngine(db *gorm.DB, eventSvc EventService, auditSvc AuditLogService, logger *logrus.Logger) WorkflowEngine {
	return &workflowEngine{
		db:       db,
		eventSvc: eventSvc,
		auditSvc: auditSvc,
		logger:   logger,
	}
}

// CreateWorkflow 创建工作流定义
func (e *workflowEngine) CreateWorkflow(ctx context.Context, tenantID string, input *WorkflowCreate) (*model.WorkflowModel, error) {
	name, err := utils.TrimAndValidate(input.Name, 255)
	if err != nil {
		return nil, NewValidationFailed("invalid workflow name", err)
	}
	if err := validateActions(input.Actions); err != nil {
		return nil, err
	}

	actionsJSON, err := json.Marshal(input.Actions)
	if err != nil {
		return nil, NewValidationFailed("invalid actions", err)
	}
	conditionsJSON, err := marshalConditions(input.TriggerConditions)
	if err != nil {
		return nil, err
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	workflow := &model.WorkflowModel{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		Name:                name,
		Description:         input.Description,
		TriggerEventType:    input.TriggerEventType,
		TriggerConditions:   conditionsJSON,
		Actions:             actionsJSON,
		ExecutionOrder:      input.ExecutionOrder,
		MaxExecutionsPerDay: input.MaxExecutionsPerDay,
		IsActive:            active,
		CreatedBy:           actorOrSystem(ctx),
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
	if err := workflow.Validate(); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}

	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	if err := workflowRepo.Save(workflow); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	if err := e.auditSvc.RecordAction(ctx, tenantID, "workflow.create", "workflow", workflow.ID, map[string]interface{}{
		"name":               workflow.Name,
		"trigger_event_type": workflow.TriggerEventType,
	}); err != nil {
		e.logger.WithError(err).Warn("failed to record audit log")
	}
	return workflow, nil
}

// GetWorkflow 根据 ID 查询工作流
func (e *workflowEngine) GetWorkflow(ctx context.Context, tenantID string, id string) (*model.WorkflowModel, error) {
	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	workflow, err := workflowRepo.FindByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("workflow %q not found", id)
		}
		return nil, err
	}
	return workflow, nil
}

// ListWorkflows 分页列出租户的工作流
func (e *workflowEngine) ListWorkflows(ctx context.Context, tenantID string, offset int, limit int) ([]*model.WorkflowModel, error) {
	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	return workflowRepo.ListForTenant(tenantID, offset, limit)
}

// UpdateWorkflow 更新工作流定义
// 触发事件类型不可变更,改触发等于换一个工作流,应当新建
func (e *workflowEngine) UpdateWorkflow(ctx context.Context, tenantID string, id string, input *WorkflowUpdate) (*model.WorkflowModel, error) {
	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	workflow, err := workflowRepo.FindByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("workflow %q not found", id)
		}
		return nil, err
	}

	if input.Name != nil {
		workflow.Name = *input.Name
	}
	if input.Description != nil {
		workflow.Description = *input.Description
	}
	if input.TriggerConditions != nil {
		conditionsJSON, err := marshalConditions(input.TriggerConditions)
		if err != nil {
			return nil, err
		}
		workflow.TriggerConditions = conditionsJSON
	}
	if input.Actions != nil {
		if err := validateActions(input.Actions); err != nil {
			return nil, err
		}
		actionsJSON, err := json.Marshal(input.Actions)
		if err != nil {
			return nil, NewValidationFailed("invalid actions", err)
		}
		workflow.Actions = actionsJSON
	}
	if input.ExecutionOrder != nil {
		workflow.ExecutionOrder = *input.ExecutionOrder
	}
	if input.MaxExecutionsPerDay != nil {
		workflow.MaxExecutionsPerDay = input.MaxExecutionsPerDay
	}
	if input.IsActive != nil {
		workflow.IsActive = *input.IsActive
	}
	workflow.UpdatedAt = time.Now()

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}
	if err := workflowRepo.Update(workflow); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	if err := e.auditSvc.RecordAction(ctx, tenantID, "workflow.update", "workflow", workflow.ID, map[string]interface{}{
		"name": workflow.Name,
	}); err != nil {
		e.logger.WithError(err).Warn("failed to record audit log")
	}
	return workflow, nil
}

// DeleteWorkflow 软删除工作流
// 已有执行记录需要保留定义作为上下文,只做标记删除
func (e *workflowEngine) DeleteWorkflow(ctx context.Context, tenantID string, id string) error {
	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	if err := workflowRepo.SoftDelete(id, tenantID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFound("workflow %q not found", id)
		}
		return err
	}

	if err := e.auditSvc.RecordAction(ctx, tenantID, "workflow.delete", "workflow", id, nil); err != nil {
		e.logger.WithError(err).Warn("failed to record audit log")
	}
	return nil
}

// GetExecution 根据 ID 查询执行记录
func (e *workflowEngine) GetExecution(ctx context.Context, tenantID string, id string) (*model.WorkflowExecutionModel, error) {
	executionRepo := repository.NewWorkflowExecutionRepository(e.db.WithContext(ctx))
	execution, err := executionRepo.FindByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("workflow execution %q not found", id)
		}
		return nil, err
	}
	return execution, nil
}

// ListExecutions 列出工作流的执行记录
func (e *workflowEngine) ListExecutions(ctx context.Context, tenantID string, workflowID string, offset int, limit int) ([]*model.WorkflowExecutionModel, error) {
	executionRepo := repository.NewWorkflowExecutionRepository(e.db.WithContext(ctx))
	return executionRepo.ListForWorkflow(workflowID, tenantID, offset, limit)
}

// ProcessTriggers 处理事件触发的工作流
//
// 按 execution_order 升序逐个执行匹配的工作流,每次执行落一条审计记录。
// 单个工作流失败不影响后续工作流,也绝不影响已提交的触发事件。
// 引擎生成的事件不再触发工作流,链式触发从源头禁止,不存在递归风暴。
func (e *workflowEngine) ProcessTriggers(ctx context.Context, event *model.EventModel, tenantID string) ([]*model.WorkflowExecutionModel, error) {
	workflowRepo := repository.NewWorkflowRepository(e.db.WithContext(ctx))
	workflows, err := workflowRepo.FindMatching(tenantID, event.EventType)
	if err != nil {
		return nil, fmt.Errorf("find matching workflows: %w", err)
	}
	if len(workflows) == 0 {
		return nil, nil
	}

	payload, err := event.PayloadMap()
	if err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	var executions []*model.WorkflowExecutionModel
	for _, workflow := range workflows {
		matched, err := e.matchesConditions(workflow, payload)
		if err != nil {
			e.logger.WithError(err).WithField("workflow_id", workflow.ID).Error("invalid trigger conditions, skipping workflow")
			continue
		}
		if !matched {
			continue
		}

		allowed, err := e.withinDailyQuota(ctx, workflow, tenantID)
		if err != nil {
			e.logger.WithError(err).WithField("workflow_id", workflow.ID).Error("quota check failed, skipping workflow")
			continue
		}
		if !allowed {
			e.logger.WithFields(logrus.Fields{
				"workflow_id": workflow.ID,
				"limit":       *workflow.MaxExecutionsPerDay,
			}).Warn("workflow skipped, daily execution quota reached")
			continue
		}

		execution := e.executeWorkflow(ctx, workflow, event, tenantID)
		if execution != nil {
			executions = append(executions, execution)
		}
	}
	return executions, nil
}

// matchesConditions 判断触发条件是否满足
// 条件是 payload 字段的扁平等值断言,键形如 payload.<field>,为空表示总是匹配
func (e *workflowEngine) matchesConditions(workflow *model.WorkflowModel, payload map[string]interface{}) (bool, error) {
	conditions, err := workflow.ConditionMap()
	if err != nil {
		return false, err
	}
	for key, expected := range conditions {
		field, ok := strings.CutPrefix(key, "payload.")
		if !ok {
			return false, fmt.Errorf("unsupported condition key %q", key)
		}
		actual, present := payload[field]
		if !present || !reflect.DeepEqual(actual, expected) {
			return false, nil
		}
	}
	return true, nil
}

// withinDailyQuota 检查每日执行配额,NULL 表示不限制
// 以 UTC 自然日为窗口统计当日已落的执行记录
func (e *workflowEngine) withinDailyQuota(ctx context.Context, workflow *model.WorkflowModel, tenantID string) (bool, error) {
	if workflow.MaxExecutionsPerDay == nil {
		return true, nil
	}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	executionRepo := repository.NewWorkflowExecutionRepository(e.db.WithContext(ctx))
	count, err := executionRepo.CountSince(workflow.ID, tenantID, midnight)
	if err != nil {
		return false, err
	}
	return count < int64(*workflow.MaxExecutionsPerDay), nil
}

// executeWorkflow 执行单个工作流并落执行记录
func (e *workflowEngine) executeWorkflow(ctx context.Context, workflow *model.WorkflowModel, event *model.EventModel, tenantID string) *model.WorkflowExecutionModel {
	executionRepo := repository.NewWorkflowExecutionRepository(e.db.WithContext(ctx))

	now := time.Now()
	execution := &model.WorkflowExecutionModel{
		ID:                   uuid.New().String(),
		TenantID:             tenantID,
		WorkflowID:           workflow.ID,
		TriggeredByEventID:   event.ID,
		TriggeredBySubjectID: event.SubjectID,
		Status:               model.ExecutionStatusRunning,
		StartedAt:            &now,
		CreatedAt:            now,
	}
	if err := executionRepo.Save(execution); err != nil {
		e.logger.WithError(err).WithField("workflow_id", workflow.ID).Error("failed to record workflow execution")
		return nil
	}

	actions, err := workflow.ActionList()
	if err != nil {
		e.finishExecution(executionRepo, execution, nil, 0, 0, fmt.Sprintf("decode actions: %v", err))
		return execution
	}

	var outcomes []model.ActionOutcome
	executed, failed := 0, 0
	for _, action := range actions {
		outcome := e.executeAction(ctx, action, event, tenantID)
		outcomes = append(outcomes, outcome)
		switch outcome.Status {
		case "success":
			executed++
		case "failed":
			failed++
		}
	}

	e.finishExecution(executionRepo, execution, outcomes, executed, failed, "")
	return execution
}

// finishExecution 收尾执行记录
func (e *workflowEngine) finishExecution(
	executionRepo repository.WorkflowExecutionRepository,
	execution *model.WorkflowExecutionModel,
	outcomes []model.ActionOutcome,
	executed int,
	failed int,
	errorMessage string,
) {
	completedAt := time.Now()
	execution.CompletedAt = &completedAt
	execution.ActionsExecuted = executed
	execution.ActionsFailed = failed
	execution.ErrorMessage = errorMessage

	if outcomes != nil {
		if logJSON, err := json.Marshal(outcomes); err == nil {
			execution.ExecutionLog = logJSON
		}
	}

	if failed > 0 || errorMessage != "" {
		execution.Status = model.ExecutionStatusFailed
	} else {
		execution.Status = model.ExecutionStatusCompleted
	}
	metrics.RecordWorkflowExecution(execution.Status)

	if err := executionRepo.Finish(execution); err != nil {
		e.logger.WithError(err).WithField("execution_id", execution.ID).Error("failed to finish workflow execution")
	}
}

// executeAction 执行单个动作
func (e *workflowEngine) executeAction(ctx context.Context, action model.WorkflowAction, event *model.EventModel, tenantID string) model.ActionOutcome {
	switch action.Type {
	case ActionCreateEvent:
		return e.executeCreateEvent(ctx, action, event, tenantID)
	default:
		return model.ActionOutcome{
			Action: action.Type,
			Status: "skipped",
			Reason: fmt.Sprintf("unknown action type %q", action.Type),
		}
	}
}

// executeCreateEvent 执行 create_event 动作
// 生成事件沿用触发事件的主体,除非参数显式指定;triggerWorkflows 恒为 false
func (e *workflowEngine) executeCreateEvent(ctx context.Context, action model.WorkflowAction, event *model.EventModel, tenantID string) model.ActionOutcome {
	outcome := model.ActionOutcome{Action: action.Type}

	eventType, _ := action.Params["event_type"].(string)
	if eventType == "" {
		outcome.Status = "failed"
		outcome.Error = "create_event action requires an event_type param"
		return outcome
	}

	subjectID := event.SubjectID
	if v, ok := action.Params["subject_id"].(string); ok && v != "" {
		subjectID = v
	}

	schemaVersion := 0
	switch v := action.Params["schema_version"].(type) {
	case float64:
		schemaVersion = int(v)
	case int:
		schemaVersion = v
	}
	if schemaVersion <= 0 {
		outcome.Status = "failed"
		outcome.Error = "create_event action requires a positive schema_version param"
		return outcome
	}

	payload, ok := action.Params["payload"].(map[string]interface{})
	if !ok {
		outcome.Status = "failed"
		outcome.Error = "create_event action requires a payload object param"
		return outcome
	}

	created, err := e.eventSvc.CreateEvent(ctx, tenantID, &EventCreate{
		SubjectID:     subjectID,
		EventType:     eventType,
		SchemaVersion: schemaVersion,
		EventTime:     time.Now().UTC(),
		Payload:       payload,
	}, false)
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = "success"
	outcome.EventID = created.ID
	return outcome
}

// validateActions 校验动作列表,动作类型必须在封闭枚举内
func validateActions(actions []model.WorkflowAction) error {
	if len(actions) == 0 {
		return NewValidationFailed("workflow requires at least one action", nil)
	}
	for _, action := range actions {
		if action.Type != ActionCreateEvent {
			return NewValidationFailed(fmt.Sprintf("unknown action type %q", action.Type), nil)
		}
	}
	return nil
}

// marshalConditions 序列化触发条件,键必须是 payload.<field> 形式
func marshalConditions(conditions map[string]interface{}) ([]byte, error) {
	if len(conditions) == 0 {
		return nil, nil
	}
	for key := range conditions {
		if !strings.HasPrefix(key, "payload.") {
			return nil, NewValidationFailed(
				fmt.Sprintf("condition key %q must use the payload.<field> form", key), nil)
		}
	}
	return json.Marshal(conditions)
}
