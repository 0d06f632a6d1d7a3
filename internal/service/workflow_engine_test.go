package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/service"
)

// newFollowupWorkflow 构造 "就诊后安排随访" 的工作流输入
func newFollowupWorkflow() *service.WorkflowCreate {
	return &service.WorkflowCreate{
		Name:             "schedule followup",
		TriggerEventType: "visit.recorded",
		Actions: []model.WorkflowAction{
			{
				Type: service.ActionCreateEvent,
				Params: map[string]interface{}{
					"event_type":     "followup.scheduled",
					"schema_version": 1,
					"payload":        map[string]interface{}{"channel": "email"},
				},
			},
		},
	}
}

// TestWorkflowEngine_CreateValidation 动作类型与条件键格式校验
func TestWorkflowEngine_CreateValidation(t *testing.T) {
	svcs := setupServices(t)

	// 未知动作类型
	_, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", &service.WorkflowCreate{
		Name:             "bad action",
		TriggerEventType: "visit.recorded",
		Actions:          []model.WorkflowAction{{Type: "send_rocket"}},
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	// 条件键必须是 payload.<field> 形式
	input := newFollowupWorkflow()
	input.TriggerConditions = map[string]interface{}{"header.reason": "checkup"}
	_, err = svcs.engine.CreateWorkflow(context.Background(), "tenant-a", input)
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	// 空动作列表
	_, err = svcs.engine.CreateWorkflow(context.Background(), "tenant-a", &service.WorkflowCreate{
		Name:             "no actions",
		TriggerEventType: "visit.recorded",
		Actions:          []model.WorkflowAction{},
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}

// TestWorkflowEngine_TriggerCreatesEvent 触发后在同一主体链上追加生成事件
func TestWorkflowEngine_TriggerCreatesEvent(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	mustRegisterSchema(t, svcs, "tenant-a", "followup.scheduled")

	workflow, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", newFollowupWorkflow())
	require.NoError(t, err)

	// 触发事件走正常创建路径,triggerWorkflows = true
	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Second),
		Payload:       map[string]interface{}{"reason": "checkup"},
	}, true)
	require.NoError(t, err)

	chain, err := svcs.eventSvc.GetChain(context.Background(), "tenant-a", "subj-1", true)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "visit.recorded", chain[0].EventType)
	assert.Equal(t, "followup.scheduled", chain[1].EventType)

	// 执行记录完成且无失败动作
	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", workflow.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, model.ExecutionStatusCompleted, executions[0].Status)
	assert.Equal(t, 1, executions[0].ActionsExecuted)
	assert.Equal(t, 0, executions[0].ActionsFailed)
}

// TestWorkflowEngine_ConditionMismatch 条件不满足时不触发
func TestWorkflowEngine_ConditionMismatch(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	mustRegisterSchema(t, svcs, "tenant-a", "followup.scheduled")

	input := newFollowupWorkflow()
	input.TriggerConditions = map[string]interface{}{"payload.reason": "emergency"}
	workflow, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", input)
	require.NoError(t, err)

	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Second),
		Payload:       map[string]interface{}{"reason": "checkup"},
	}, true)
	require.NoError(t, err)

	chain, err := svcs.eventSvc.GetChain(context.Background(), "tenant-a", "subj-1", true)
	require.NoError(t, err)
	assert.Len(t, chain, 1)

	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", workflow.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

// TestWorkflowEngine_NoRecursiveTriggering 生成事件不再触发工作流
func TestWorkflowEngine_NoRecursiveTriggering(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	mustRegisterSchema(t, svcs, "tenant-a", "followup.scheduled")

	// 第二个工作流监听生成事件的类型,如果递归触发它会再追加一个事件
	_, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", newFollowupWorkflow())
	require.NoError(t, err)
	recursive, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", &service.WorkflowCreate{
		Name:             "would recurse",
		TriggerEventType: "followup.scheduled",
		Actions: []model.WorkflowAction{
			{
				Type: service.ActionCreateEvent,
				Params: map[string]interface{}{
					"event_type":     "followup.scheduled",
					"schema_version": 1,
					"payload":        map[string]interface{}{},
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Second),
		Payload:       map[string]interface{}{},
	}, true)
	require.NoError(t, err)

	// 只有触发事件 + 一个生成事件,递归工作流未被触发
	chain, err := svcs.eventSvc.GetChain(context.Background(), "tenant-a", "subj-1", true)
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", recursive.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

// TestWorkflowEngine_DailyQuota 配额用尽后跳过执行
func TestWorkflowEngine_DailyQuota(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	mustRegisterSchema(t, svcs, "tenant-a", "followup.scheduled")

	limit := 1
	input := newFollowupWorkflow()
	input.MaxExecutionsPerDay = &limit
	workflow, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", input)
	require.NoError(t, err)

	// 第一次触发生成的随访事件会把链尾推进到当前时刻,
	// 第二个触发事件的时间要晚于它才能入链
	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Minute),
		Payload:       map[string]interface{}{},
	}, true)
	require.NoError(t, err)

	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(time.Minute),
		Payload:       map[string]interface{}{},
	}, true)
	require.NoError(t, err)

	// 第二次触发被配额拦下,不落执行记录
	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", workflow.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

// TestWorkflowEngine_FailedActionMarksExecution 动作失败记入执行状态
func TestWorkflowEngine_FailedActionMarksExecution(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	// followup.scheduled 没有注册 Schema,生成事件会失败

	workflow, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", newFollowupWorkflow())
	require.NoError(t, err)

	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Second),
		Payload:       map[string]interface{}{},
	}, true)
	require.NoError(t, err)

	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", workflow.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, model.ExecutionStatusFailed, executions[0].Status)
	assert.Equal(t, 1, executions[0].ActionsFailed)
}

// TestWorkflowEngine_UpdateAndDelete 更新与软删除
func TestWorkflowEngine_UpdateAndDelete(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")
	mustRegisterSchema(t, svcs, "tenant-a", "followup.scheduled")

	workflow, err := svcs.engine.CreateWorkflow(context.Background(), "tenant-a", newFollowupWorkflow())
	require.NoError(t, err)

	newName := "renamed"
	inactive := false
	updated, err := svcs.engine.UpdateWorkflow(context.Background(), "tenant-a", workflow.ID, &service.WorkflowUpdate{
		Name:     &newName,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)

	// 停用后不再触发
	_, err = svcs.eventSvc.CreateEvent(context.Background(), "tenant-a", &service.EventCreate{
		SubjectID:     "subj-1",
		EventType:     "visit.recorded",
		SchemaVersion: 1,
		EventTime:     time.Now().UTC().Add(-time.Second),
		Payload:       map[string]interface{}{},
	}, true)
	require.NoError(t, err)

	executions, err := svcs.engine.ListExecutions(context.Background(), "tenant-a", workflow.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, executions)

	// 软删除后不再出现在列表中,但 ID 直查仍可见(执行记录需要定义上下文)
	require.NoError(t, svcs.engine.DeleteWorkflow(context.Background(), "tenant-a", workflow.ID))
	listed, err := svcs.engine.ListWorkflows(context.Background(), "tenant-a", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)

	deleted, err := svcs.engine.GetWorkflow(context.Background(), "tenant-a", workflow.ID)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
}
