package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// TestSubjectService_CreateWithGeneratedID 缺省 ID 时生成 UUID
func TestSubjectService_CreateWithGeneratedID(t *testing.T) {
	svcs := setupServices(t)

	subject, err := svcs.subjectSvc.Create(context.Background(), "tenant-a", &service.SubjectCreate{
		Name: "Ada Lovelace",
		Kind: "contact",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, subject.ID)
	assert.Equal(t, "tenant-a", subject.TenantID)
}

// TestSubjectService_CreateWithExternalID 外部系统主键直通
func TestSubjectService_CreateWithExternalID(t *testing.T) {
	svcs := setupServices(t)

	subject, err := svcs.subjectSvc.Create(context.Background(), "tenant-a", &service.SubjectCreate{
		ID:   "crm-42",
		Name: "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "crm-42", subject.ID)

	// 重复注册冲突
	_, err = svcs.subjectSvc.Create(context.Background(), "tenant-a", &service.SubjectCreate{
		ID:   "crm-42",
		Name: "Someone Else",
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindConflict))
}

// TestSubjectService_InvalidInput 非法 ID 与空名称被拒绝
func TestSubjectService_InvalidInput(t *testing.T) {
	svcs := setupServices(t)

	_, err := svcs.subjectSvc.Create(context.Background(), "tenant-a", &service.SubjectCreate{
		ID:   "has spaces",
		Name: "X",
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	_, err = svcs.subjectSvc.Create(context.Background(), "tenant-a", &service.SubjectCreate{
		Name: "   ",
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}

// TestSubjectService_GetAndList 查询与租户隔离
func TestSubjectService_GetAndList(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustCreateSubject(t, svcs, "tenant-b", "subj-2")

	got, err := svcs.subjectSvc.Get(context.Background(), "tenant-a", "subj-1")
	require.NoError(t, err)
	assert.Equal(t, "subj-1", got.ID)

	// 跨租户查询不可见
	_, err = svcs.subjectSvc.Get(context.Background(), "tenant-b", "subj-1")
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindNotFound))

	listed, err := svcs.subjectSvc.List(context.Background(), "tenant-a", 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "subj-1", listed[0].ID)
}

// TestStatisticsService_TenantStatistics 租户统计汇总
func TestStatisticsService_TenantStatistics(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mustCreateEvent(t, svcs, "tenant-a", "subj-1", "visit.recorded", 1, base, map[string]interface{}{"n": 1})
	mustCreateEvent(t, svcs, "tenant-a", "subj-1", "visit.recorded", 1, base.Add(time.Minute), map[string]interface{}{"n": 2})

	statsSvc := service.NewStatisticsService(svcs.db)
	stats, err := statsSvc.GetTenantStatistics(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.TotalSubjects)
	assert.Equal(t, int64(2), stats.EventsByType["visit.recorded"])
	assert.Zero(t, stats.ExecutionSuccessRate)
}
