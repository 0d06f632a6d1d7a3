package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// TestSchemaService_VersionAllocation 版本号由服务端分配,从 1 起递增
func TestSchemaService_VersionAllocation(t *testing.T) {
	svcs := setupServices(t)

	v1, err := svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "note.added",
		Definition: []byte(`{"type": "object"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.False(t, v1.IsActive)

	v2, err := svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "note.added",
		Definition: []byte(`{"type": "object"}`),
		Activate:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsActive)
}

// TestSchemaService_InvalidDefinitionRejected 非法定义在入库前拒绝
func TestSchemaService_InvalidDefinitionRejected(t *testing.T) {
	svcs := setupServices(t)

	_, err := svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "note.added",
		Definition: []byte(`{"type": "no-such-type"}`),
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	// 事件类型格式非法
	_, err = svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "Not Valid!",
		Definition: []byte(`{"type": "object"}`),
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}

// TestSchemaService_ActivationExclusivity 同一事件类型至多一个激活版本
func TestSchemaService_ActivationExclusivity(t *testing.T) {
	svcs := setupServices(t)

	v1 := mustRegisterSchema(t, svcs, "tenant-a", "note.added")
	v2, err := svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "note.added",
		Definition: []byte(`{"type": "object"}`),
		Activate:   true,
	})
	require.NoError(t, err)

	// v2 激活后 v1 被停用
	active, err := svcs.schemaSvc.GetActiveSchema(context.Background(), "tenant-a", "note.added")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, v2.Version, active.Version)

	reloaded, err := svcs.schemaSvc.GetByID(context.Background(), "tenant-a", v1.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	// 显式切回 v1
	_, err = svcs.schemaSvc.Activate(context.Background(), "tenant-a", v1.ID)
	require.NoError(t, err)

	active, err = svcs.schemaSvc.GetActiveSchema(context.Background(), "tenant-a", "note.added")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 1, active.Version)
}

// TestSchemaService_ActiveCacheInvalidation 变更路径同步失效激活版本缓存
func TestSchemaService_ActiveCacheInvalidation(t *testing.T) {
	svcs := setupServices(t)

	v1 := mustRegisterSchema(t, svcs, "tenant-a", "note.added")

	// 第一次读取回填缓存
	active, err := svcs.schemaSvc.GetActiveSchema(context.Background(), "tenant-a", "note.added")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 1, active.Version)

	// 停用后缓存必须失效,读取返回 nil
	_, err = svcs.schemaSvc.Deactivate(context.Background(), "tenant-a", v1.ID)
	require.NoError(t, err)

	active, err = svcs.schemaSvc.GetActiveSchema(context.Background(), "tenant-a", "note.added")
	require.NoError(t, err)
	assert.Nil(t, active)
}

// TestSchemaService_DeleteGatedByReferencingEvents 被事件引用的版本不可删除
func TestSchemaService_DeleteGatedByReferencingEvents(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	v1 := mustRegisterSchema(t, svcs, "tenant-a", "note.added")

	mustCreateEvent(t, svcs, "tenant-a", "subj-1", "note.added", 1,
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), map[string]interface{}{"text": "hi"})

	err := svcs.schemaSvc.DeleteVersion(context.Background(), "tenant-a", v1.ID)
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindConflict))

	// 未被引用的版本可以删除
	v2, err := svcs.schemaSvc.CreateVersion(context.Background(), "tenant-a", &service.SchemaCreate{
		EventType:  "note.added",
		Definition: []byte(`{"type": "object"}`),
	})
	require.NoError(t, err)
	require.NoError(t, svcs.schemaSvc.DeleteVersion(context.Background(), "tenant-a", v2.ID))
}

// TestSchemaService_AuditTrail 管理操作落审计日志
func TestSchemaService_AuditTrail(t *testing.T) {
	svcs := setupServices(t)

	v1 := mustRegisterSchema(t, svcs, "tenant-a", "note.added")

	logs, err := svcs.auditSvc.ListForResource(context.Background(), "tenant-a", "event_schema", v1.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "schema.create", logs[0].Action)
	assert.Equal(t, "system", logs[0].ActorID)
}

// TestSchemaService_TenantIsolation 租户之间的注册表互不可见
func TestSchemaService_TenantIsolation(t *testing.T) {
	svcs := setupServices(t)

	mustRegisterSchema(t, svcs, "tenant-a", "note.added")

	active, err := svcs.schemaSvc.GetActiveSchema(context.Background(), "tenant-b", "note.added")
	require.NoError(t, err)
	assert.Nil(t, active)

	versions, err := svcs.schemaSvc.ListVersions(context.Background(), "tenant-b", "note.added")
	require.NoError(t, err)
	assert.Empty(t, versions)
}
