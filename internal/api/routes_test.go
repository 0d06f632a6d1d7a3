package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/api"
	"github.com/HSPiira/timeline-sub000/internal/auth"
	"github.com/HSPiira/timeline-sub000/internal/cache"
	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/database"
	"github.com/HSPiira/timeline-sub000/internal/hash"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/service"
	"github.com/HSPiira/timeline-sub000/internal/websocket"
)

// testAPI HTTP 测试环境
type testAPI struct {
	router    *gin.Engine
	validator *auth.TokenValidator
}

// setupAPI 装配内存数据库、全部服务与完整路由
func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hashSvc := hash.NewService(hash.SHA256{})
	auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	schemaSvc := service.NewSchemaService(db, cache.NewMemoryCache(time.Minute), auditSvc, logger)
	subjectSvc := service.NewSubjectService(db, auditSvc, logger)

	hub := websocket.NewHub()
	eventSvc := service.NewEventService(db, hashSvc, schemaSvc, hub, logger)
	engine := service.NewWorkflowEngine(db, eventSvc, auditSvc, logger)
	eventSvc.SetTriggerProcessor(engine)
	verifySvc := service.NewVerificationService(db, hashSvc, logger)

	validator := auth.NewTokenValidator("timeline", "test-secret")
	router := api.SetupRoutes(&api.RouterDeps{
		DB:         db,
		Validator:  validator,
		Hub:        hub,
		EventSvc:   eventSvc,
		SchemaSvc:  schemaSvc,
		SubjectSvc: subjectSvc,
		Engine:     engine,
		VerifySvc:  verifySvc,
		AuditSvc:   auditSvc,
		StatsSvc:   service.NewStatisticsService(db),
		Server:     &config.ServerConfig{},
	})

	return &testAPI{router: router, validator: validator}
}

// token 为指定租户签发测试 Token
func (a *testAPI) token(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := a.validator.IssueToken("user-1", tenantID, time.Hour)
	require.NoError(t, err)
	return token
}

// do 发送请求并返回响应
func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// decodeData 解码统一响应的 data 字段
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Zero(t, resp.Code, "unexpected error response: %s", w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

// seedSubjectAndSchema 注册主体和宽松的对象 Schema
func (a *testAPI) seedSubjectAndSchema(t *testing.T, token, subjectID, eventType string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/subjects", token, gin.H{
		"id":   subjectID,
		"name": "Subject " + subjectID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": eventType,
		"definition": json.RawMessage(`{"type": "object"}`),
		"activate":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// TestRoutes_AuthRequired 未认证请求被拒绝
func TestRoutes_AuthRequired(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/subjects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/subjects", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRoutes_HealthAndNoRoute 健康检查无需认证,未知路由返回 JSON 404
func TestRoutes_HealthAndNoRoute(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v2/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route not found")
}

// TestRoutes_SubjectLifecycle 主体注册、查询与错误映射
func TestRoutes_SubjectLifecycle(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")

	w := a.do(t, http.MethodPost, "/api/v1/subjects", token, gin.H{
		"id":   "subj-1",
		"name": "Ada Lovelace",
		"kind": "contact",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subject struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	}
	decodeData(t, w, &subject)
	assert.Equal(t, "subj-1", subject.ID)
	assert.Equal(t, "tenant-a", subject.TenantID)

	// 重复注册映射为 409
	w = a.do(t, http.MethodPost, "/api/v1/subjects", token, gin.H{
		"id":   "subj-1",
		"name": "Duplicate",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 非法 ID 映射为 400
	w = a.do(t, http.MethodPost, "/api/v1/subjects", token, gin.H{
		"id":   "has spaces",
		"name": "Bad ID",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 不存在的主体映射为 404
	w = a.do(t, http.MethodGet, "/api/v1/subjects/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 其他租户不可见
	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1", a.token(t, "tenant-b"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestRoutes_EventChain 事件追加、链查询与校验
func TestRoutes_EventChain(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		w := a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
			"subject_id":     "subj-1",
			"event_type":     "visit.recorded",
			"schema_version": 1,
			"event_time":     base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"payload":        gin.H{"sequence": i},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// 时间回退映射为 400
	w := a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 1,
		"event_time":     base.Format(time.RFC3339),
		"payload":        gin.H{"sequence": 99},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 链按时间升序返回
	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1/chain", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chain struct {
		SubjectID string `json:"subject_id"`
		Count     int    `json:"count"`
		Events    []struct {
			Hash         string  `json:"hash"`
			PreviousHash *string `json:"previous_hash"`
		} `json:"events"`
	}
	decodeData(t, w, &chain)
	require.Equal(t, 3, chain.Count)
	assert.Nil(t, chain.Events[0].PreviousHash)
	require.NotNil(t, chain.Events[1].PreviousHash)
	assert.Equal(t, chain.Events[0].Hash, *chain.Events[1].PreviousHash)

	// 链校验通过
	w = a.do(t, http.MethodPost, "/api/v1/subjects/subj-1/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Valid      bool `json:"valid"`
		EventCount int  `json:"event_count"`
	}
	decodeData(t, w, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.EventCount)

	// 租户级校验
	w = a.do(t, http.MethodPost, "/api/v1/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tenantReport struct {
		Valid        bool `json:"valid"`
		SubjectCount int  `json:"subject_count"`
	}
	decodeData(t, w, &tenantReport)
	assert.True(t, tenantReport.Valid)
	assert.Equal(t, 1, tenantReport.SubjectCount)
}

// TestRoutes_BulkEvents 批量追加原子提交
func TestRoutes_BulkEvents(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	events := make([]gin.H, 0, 3)
	for i := 0; i < 3; i++ {
		events = append(events, gin.H{
			"subject_id":     "subj-1",
			"event_type":     "visit.recorded",
			"schema_version": 1,
			"event_time":     base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"payload":        gin.H{"sequence": i},
		})
	}

	w := a.do(t, http.MethodPost, "/api/v1/events/bulk", token, gin.H{"events": events})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &result)
	assert.Equal(t, 3, result.Count)

	// 违反时间顺序的批次整体回滚
	w = a.do(t, http.MethodPost, "/api/v1/events/bulk", token, gin.H{"events": []gin.H{
		{
			"subject_id":     "subj-1",
			"event_type":     "visit.recorded",
			"schema_version": 1,
			"event_time":     base.Format(time.RFC3339),
			"payload":        gin.H{"sequence": 99},
		},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1/chain", token, nil)
	var chain struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &chain)
	assert.Equal(t, 3, chain.Count)
}

// TestRoutes_SchemaRegistry Schema 注册、激活切换与删除保护
func TestRoutes_SchemaRegistry(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")

	// 非法 Schema 定义映射为 400
	w := a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": "visit.recorded",
		"definition": json.RawMessage(`{"type": "not-a-type"}`),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 注册两个版本,第二个激活
	var v1 struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	w = a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": "visit.recorded",
		"definition": json.RawMessage(`{"type": "object"}`),
		"activate":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decodeData(t, w, &v1)
	assert.Equal(t, 1, v1.Version)

	var v2 struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	w = a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": "visit.recorded",
		"definition": json.RawMessage(`{"type": "object", "required": ["location"]}`),
		"activate":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	decodeData(t, w, &v2)
	assert.Equal(t, 2, v2.Version)

	// 激活版本查询返回 v2
	w = a.do(t, http.MethodGet, "/api/v1/schemas/types/visit.recorded/active", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active struct {
		Version int `json:"version"`
	}
	decodeData(t, w, &active)
	assert.Equal(t, 2, active.Version)

	// 版本列表
	w = a.do(t, http.MethodGet, "/api/v1/schemas/types/visit.recorded/versions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var versions []struct {
		Version int `json:"version"`
	}
	decodeData(t, w, &versions)
	assert.Len(t, versions, 2)

	// 已停用的版本不再接受新事件
	a.seedSubject(t, token, "subj-1")
	w = a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 1,
		"event_time":     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":        gin.H{"n": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// 被事件引用的版本不可删除,未被引用的可以
	w = a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 2,
		"event_time":     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":        gin.H{"location": "clinic"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodDelete, "/api/v1/schemas/"+v2.ID, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodDelete, "/api/v1/schemas/"+v1.ID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestRoutes_WorkflowTrigger 工作流创建与触发执行
func TestRoutes_WorkflowTrigger(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	w := a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": "followup.scheduled",
		"definition": json.RawMessage(`{"type": "object"}`),
		"activate":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/workflows", token, gin.H{
		"name":               "schedule followup",
		"trigger_event_type": "visit.recorded",
		"actions": []gin.H{
			{
				"type": "create_event",
				"params": gin.H{
					"event_type":     "followup.scheduled",
					"schema_version": 1,
					"payload":        gin.H{"channel": "email"},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var workflow struct {
		ID string `json:"id"`
	}
	decodeData(t, w, &workflow)

	w = a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 1,
		"event_time":     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":        gin.H{"n": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 触发生成的事件追加到同一条链上
	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1/chain", token, nil)
	var chain struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &chain)
	assert.Equal(t, 2, chain.Count)

	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/workflows/%s/executions", workflow.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var executions []struct {
		Status string `json:"status"`
	}
	decodeData(t, w, &executions)
	require.Len(t, executions, 1)
	assert.Equal(t, "completed", executions[0].Status)
}

// TestRoutes_Statistics 统计端点
func TestRoutes_Statistics(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	w := a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 1,
		"event_time":     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":        gin.H{"n": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/statistics", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		TotalEvents   int64 `json:"total_events"`
		TotalSubjects int64 `json:"total_subjects"`
	}
	decodeData(t, w, &stats)
	assert.Equal(t, int64(1), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.TotalSubjects)
}

// TestRoutes_AuditLogs 审计日志查询
func TestRoutes_AuditLogs(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	w := a.do(t, http.MethodGet, "/api/v1/audit-logs", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []struct {
		Action  string `json:"action"`
		ActorID string `json:"actor_id"`
	}
	decodeData(t, w, &logs)
	require.NotEmpty(t, logs)

	actions := make(map[string]bool)
	for _, entry := range logs {
		actions[entry.Action] = true
		assert.Equal(t, "user-1", entry.ActorID)
	}
	assert.True(t, actions["subject.create"])
	assert.True(t, actions["schema.create"])
}

// seedSubject 注册主体
func (a *testAPI) seedSubject(t *testing.T, token, subjectID string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/subjects", token, gin.H{
		"id":   subjectID,
		"name": "Subject " + subjectID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// TestRoutes_BulkDoesNotTriggerWorkflows 批量回填缺省不触发工作流
func TestRoutes_BulkDoesNotTriggerWorkflows(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	w := a.do(t, http.MethodPost, "/api/v1/schemas", token, gin.H{
		"event_type": "followup.scheduled",
		"definition": json.RawMessage(`{"type": "object"}`),
		"activate":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/workflows", token, gin.H{
		"name":               "schedule followup",
		"trigger_event_type": "visit.recorded",
		"actions": []gin.H{
			{
				"type": "create_event",
				"params": gin.H{
					"event_type":     "followup.scheduled",
					"schema_version": 1,
					"payload":        gin.H{"channel": "email"},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var workflow struct {
		ID string `json:"id"`
	}
	decodeData(t, w, &workflow)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	w = a.do(t, http.MethodPost, "/api/v1/events/bulk", token, gin.H{"events": []gin.H{
		{
			"subject_id":     "subj-1",
			"event_type":     "visit.recorded",
			"schema_version": 1,
			"event_time":     base.Format(time.RFC3339),
			"payload":        gin.H{"n": 1},
		},
		{
			"subject_id":     "subj-1",
			"event_type":     "visit.recorded",
			"schema_version": 1,
			"event_time":     base.Add(time.Minute).Format(time.RFC3339),
			"payload":        gin.H{"n": 2},
		},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 链上只有批次本身,没有生成的随访事件
	w = a.do(t, http.MethodGet, "/api/v1/subjects/subj-1/chain", token, nil)
	var chain struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &chain)
	assert.Equal(t, 2, chain.Count)

	w = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/workflows/%s/executions", workflow.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var executions []struct {
		Status string `json:"status"`
	}
	decodeData(t, w, &executions)
	assert.Empty(t, executions)
}

// TestRoutes_EventsAreImmutable 已提交事件的修改与删除一律 403
func TestRoutes_EventsAreImmutable(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, "tenant-a")
	a.seedSubjectAndSchema(t, token, "subj-1", "visit.recorded")

	w := a.do(t, http.MethodPost, "/api/v1/events", token, gin.H{
		"subject_id":     "subj-1",
		"event_type":     "visit.recorded",
		"schema_version": 1,
		"event_time":     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":        gin.H{"n": 1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var event struct {
		ID string `json:"id"`
	}
	decodeData(t, w, &event)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		w = a.do(t, method, "/api/v1/events/"+event.ID, token, nil)
		require.Equal(t, http.StatusForbidden, w.Code, method)
		var resp api.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "immutable resource", resp.Message)
	}

	// 事件本体未受影响
	w = a.do(t, http.MethodGet, "/api/v1/events/"+event.ID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
