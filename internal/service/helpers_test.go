package service_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/cache"
	"github.com/HSPiira/timeline-sub000/internal/database"
	"github.com/HSPiira/timeline-sub000/internal/hash"
	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/service"
)

// testServices 测试用的服务集合
type testServices struct {
	db          *gorm.DB
	hashSvc     *hash.Service
	auditSvc    service.AuditLogService
	schemaSvc   service.SchemaService
	subjectSvc  service.SubjectService
	eventSvc    service.EventService
	engine      service.WorkflowEngine
	verifySvc   service.VerificationService
	broadcaster *captureBroadcaster
}

// captureBroadcaster 记录广播事件的桩实现
type captureBroadcaster struct {
	events []*model.EventModel
}

func (b *captureBroadcaster) BroadcastEvent(event *model.EventModel) {
	b.events = append(b.events, event)
}

// newTestLogger 静默日志,测试输出不被服务日志淹没
func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupServices 创建内存数据库并装配全部服务
func setupServices(t *testing.T) *testServices {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := newTestLogger()
	hashSvc := hash.NewService(hash.SHA256{})
	auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	schemaSvc := service.NewSchemaService(db, cache.NewMemoryCache(time.Minute), auditSvc, logger)
	subjectSvc := service.NewSubjectService(db, auditSvc, logger)

	broadcaster := &captureBroadcaster{}
	eventSvc := service.NewEventService(db, hashSvc, schemaSvc, broadcaster, logger)
	engine := service.NewWorkflowEngine(db, eventSvc, auditSvc, logger)
	eventSvc.SetTriggerProcessor(engine)
	verifySvc := service.NewVerificationService(db, hashSvc, logger)

	return &testServices{
		db:          db,
		hashSvc:     hashSvc,
		auditSvc:    auditSvc,
		schemaSvc:   schemaSvc,
		subjectSvc:  subjectSvc,
		eventSvc:    eventSvc,
		engine:      engine,
		verifySvc:   verifySvc,
		broadcaster: broadcaster,
	}
}

// mustCreateSubject 注册测试主体
func mustCreateSubject(t *testing.T, svcs *testServices, tenantID, id string) *model.SubjectModel {
	subject, err := svcs.subjectSvc.Create(context.Background(), tenantID, &service.SubjectCreate{
		ID:   id,
		Name: "Subject " + id,
		Kind: "contact",
	})
	require.NoError(t, err)
	return subject
}

// mustRegisterSchema 注册并激活一个宽松的对象 Schema
func mustRegisterSchema(t *testing.T, svcs *testServices, tenantID, eventType string) *model.EventSchemaModel {
	created, err := svcs.schemaSvc.CreateVersion(context.Background(), tenantID, &service.SchemaCreate{
		EventType:  eventType,
		Definition: json.RawMessage(`{"type": "object"}`),
		Activate:   true,
	})
	require.NoError(t, err)
	return created
}

// mustCreateEvent 追加一个事件
func mustCreateEvent(t *testing.T, svcs *testServices, tenantID, subjectID, eventType string, version int, eventTime time.Time, payload map[string]interface{}) *model.EventModel {
	event, err := svcs.eventSvc.CreateEvent(context.Background(), tenantID, &service.EventCreate{
		SubjectID:     subjectID,
		EventType:     eventType,
		SchemaVersion: version,
		EventTime:     eventTime,
		Payload:       payload,
	}, false)
	require.NoError(t, err)
	return event
}
