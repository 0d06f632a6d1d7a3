package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/hash"
	"github.com/HSPiira/timeline-sub000/internal/metrics"
	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/schema"
)

// maxChainRetries 链尾竞争冲突的最大重试次数
// 输给并发写入者后重读链尾再试,超过次数把冲突原样交还调用方
const maxChainRetries = 3

// EventCreate 创建事件的输入
type EventCreate struct {
	SubjectID     string                 `json:"subject_id" binding:"required"`
	EventType     string                 `json:"event_type" binding:"required"`
	SchemaVersion int                    `json:"schema_version" binding:"required"`
	EventTime     time.Time              `json:"event_time" binding:"required"`
	Payload       map[string]interface{} `json:"payload" binding:"required"`
}

// TriggerProcessor 触发处理器接口
// 事件服务通过它把已提交事件交给工作流引擎,不关心引擎内部
type TriggerProcessor interface {
	ProcessTriggers(ctx context.Context, event *model.EventModel, tenantID string) ([]*model.WorkflowExecutionModel, error)
}

// EventBroadcaster 事件广播接口
// 提交成功后把事件推给订阅了该主体的连接(WebSocket 实时流)
type EventBroadcaster interface {
	BroadcastEvent(event *model.EventModel)
}

// EventService 事件编排服务接口
// 账本的唯一写入口: 校验主体与负载、解析链尾、计算哈希、落盘、触发自动化
type EventService interface {
	CreateEvent(ctx context.Context, tenantID string, input *EventCreate, triggerWorkflows bool) (*model.EventModel, error)
	CreateEventsBulk(ctx context.Context, tenantID string, inputs []*EventCreate, skipSchemaValidation bool, triggerWorkflows bool) ([]*model.EventModel, error)
	GetEvent(ctx context.Context, tenantID string, eventID string) (*model.EventModel, error)
	GetChain(ctx context.Context, tenantID string, subjectID string, ascending bool) ([]*model.EventModel, error)
	SetTriggerProcessor(processor TriggerProcessor)
}

// eventService 事件编排服务实现
type eventService struct {
	db          *gorm.DB
	hashSvc     *hash.Service
	schemaSvc   SchemaService
	processor   TriggerProcessor
	broadcaster EventBroadcaster
	logger      *logrus.Logger
}

// NewEventService 创建事件编排服务
// TriggerProcessor 因与工作流引擎互相引用,由容器在引擎创建后注入
func NewEventService(
	db *gorm.DB,
	hashSvc *hash.Service,
	schemaSvc SchemaService,
	broadcaster EventBroadcaster,
	logger *logrus.Logger,
) EventService {
	return &eventService{
		db:          db,
		hashSvc:     hashSvc,
		schemaSvc:   schemaSvc,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// SetTriggerProcessor 注入触发处理器
func (s *eventService) SetTriggerProcessor(processor TriggerProcessor) {
	s.processor = processor
}

// CreateEvent 创建事件
//
// 状态机: Validating → ChainResolved → Hashed → Committed → (可选) Triggered。
// 读链尾、算哈希、落盘在一个事务内完成,主体行锁串行化同一主体的并发写入;
// 工作流触发在事务提交之后,其失败只记录,绝不回滚已提交的事件。
func (s *eventService) CreateEvent(ctx context.Context, tenantID string, input *EventCreate, triggerWorkflows bool) (*model.EventModel, error) {
	// postgres timestamptz 只保留微秒,入账前截断,否则校验重算哈希时会对不上
	input.EventTime = input.EventTime.UTC().Truncate(time.Microsecond)

	// 1. 确认主体存在且属于租户
	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	exists, err := subjectRepo.ExistsInTenant(input.SubjectID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return nil, NewNotFound("subject %q not found or does not belong to tenant", input.SubjectID)
	}

	// 2. 按声明的确切版本校验 payload(不是当前激活版本)
	if err := s.validatePayload(ctx, tenantID, input.EventType, input.SchemaVersion, input.Payload); err != nil {
		return nil, err
	}

	var created *model.EventModel
	for attempt := 0; ; attempt++ {
		created, err = s.commitEvent(ctx, tenantID, input)
		if err == nil {
			break
		}
		if IsKind(err, KindChainConflict) && attempt < maxChainRetries-1 {
			metrics.RecordChainConflict()
			s.logger.WithFields(logrus.Fields{
				"subject_id": input.SubjectID,
				"attempt":    attempt + 1,
			}).Warn("chain tip conflict, retrying with fresh tip")
			continue
		}
		return nil, err
	}

	metrics.RecordEventCreated(created.EventType)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(created)
	}

	// 7. 触发工作流: 尽力而为,失败只记录
	if triggerWorkflows {
		s.triggerWorkflows(ctx, created, tenantID)
	}

	return created, nil
}

// commitEvent 在一个事务内完成读链尾、时序检查、哈希计算与落盘
func (s *eventService) commitEvent(ctx context.Context, tenantID string, input *EventCreate) (*model.EventModel, error) {
	var created *model.EventModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subjectRepo := repository.NewSubjectRepository(tx)
		eventRepo := repository.NewEventRepository(tx)

		// 3. 对主体行加写锁,串行化同一主体的并发追加
		if _, err := subjectRepo.FindByIDForUpdate(input.SubjectID, tenantID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFound("subject %q not found or does not belong to tenant", input.SubjectID)
			}
			return fmt.Errorf("lock subject: %w", err)
		}

		prev, err := eventRepo.GetLastEvent(input.SubjectID, tenantID)
		if err != nil {
			return fmt.Errorf("read chain tip: %w", err)
		}

		// 4. 严格时序单调: 在哈希计算之前检查
		var prevHash *string
		if prev != nil {
			if !input.EventTime.After(prev.EventTime) {
				return NewTemporalOrderViolation(
					"event time %s must be after previous event time %s",
					input.EventTime.UTC().Format(time.RFC3339Nano),
					prev.EventTime.UTC().Format(time.RFC3339Nano),
				)
			}
			prevHash = &prev.Hash
		}

		// 5. 基于链尾哈希计算内容哈希
		eventHash, err := s.hashSvc.ComputeHash(
			input.SubjectID, input.EventType, input.SchemaVersion,
			input.EventTime, input.Payload, prevHash,
		)
		if err != nil {
			return fmt.Errorf("compute hash: %w", err)
		}

		payloadJSON, err := json.Marshal(input.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		event := &model.EventModel{
			ID:            uuid.New().String(),
			TenantID:      tenantID,
			SubjectID:     input.SubjectID,
			EventType:     input.EventType,
			SchemaVersion: input.SchemaVersion,
			EventTime:     input.EventTime,
			Payload:       payloadJSON,
			PreviousHash:  prevHash,
			Hash:          eventHash,
			CreatedAt:     time.Now(),
		}

		// 6. 追加落盘;唯一约束冲突意味着输给了并发写入者
		if err := eventRepo.Append(event); err != nil {
			if repository.IsUniqueViolation(err) {
				return NewChainConflict("concurrent writer won the chain tip, retry with a fresh read", err)
			}
			return fmt.Errorf("append event: %w", err)
		}

		created = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateEventsBulk 批量创建事件
//
// 面向高吞吐生产者(回填、邮件同步)的优化: 哈希链在内存中顺序推进,
// 落盘是一次批量提交。批内任意一条失败则整批失败,不留部分链;
// 需要部分成功语义的调用方应退回逐条 CreateEvent。
func (s *eventService) CreateEventsBulk(
	ctx context.Context,
	tenantID string,
	inputs []*EventCreate,
	skipSchemaValidation bool,
	triggerWorkflows bool,
) ([]*model.EventModel, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	// postgres timestamptz 只保留微秒,入账前截断,否则校验重算哈希时会对不上
	for _, input := range inputs {
		input.EventTime = input.EventTime.UTC().Truncate(time.Microsecond)
	}

	// 主体须在进入事务前全部可解析
	subjectIDs := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if !seen[input.SubjectID] {
			seen[input.SubjectID] = true
			subjectIDs = append(subjectIDs, input.SubjectID)
		}
	}
	// 固定加锁顺序,避免并发批次互相死锁
	sort.Strings(subjectIDs)

	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	for _, subjectID := range subjectIDs {
		exists, err := subjectRepo.ExistsInTenant(subjectID, tenantID)
		if err != nil {
			return nil, fmt.Errorf("check subject: %w", err)
		}
		if !exists {
			return nil, NewNotFound("subject %q not found or does not belong to tenant", subjectID)
		}
	}

	if !skipSchemaValidation {
		for _, input := range inputs {
			if err := s.validatePayload(ctx, tenantID, input.EventType, input.SchemaVersion, input.Payload); err != nil {
				return nil, err
			}
		}
	}

	var created []*model.EventModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txSubjectRepo := repository.NewSubjectRepository(tx)
		eventRepo := repository.NewEventRepository(tx)

		type chainState struct {
			prevHash *string
			prevTime time.Time
			hasPrev  bool
		}
		chains := make(map[string]*chainState, len(subjectIDs))

		for _, subjectID := range subjectIDs {
			if _, err := txSubjectRepo.FindByIDForUpdate(subjectID, tenantID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return NewNotFound("subject %q not found or does not belong to tenant", subjectID)
				}
				return fmt.Errorf("lock subject: %w", err)
			}
			prev, err := eventRepo.GetLastEvent(subjectID, tenantID)
			if err != nil {
				return fmt.Errorf("read chain tip: %w", err)
			}
			state := &chainState{}
			if prev != nil {
				state.prevHash = &prev.Hash
				state.prevTime = prev.EventTime
				state.hasPrev = true
			}
			chains[subjectID] = state
		}

		events := make([]*model.EventModel, 0, len(inputs))
		for _, input := range inputs {
			if err := ctx.Err(); err != nil {
				// 取消信号中止整批,事务回滚,不留部分提交
				return err
			}

			state := chains[input.SubjectID]
			if state.hasPrev && !input.EventTime.After(state.prevTime) {
				return NewTemporalOrderViolation(
					"event time %s must be after previous event time %s (bulk input must be sorted)",
					input.EventTime.UTC().Format(time.RFC3339Nano),
					state.prevTime.UTC().Format(time.RFC3339Nano),
				)
			}

			eventHash, err := s.hashSvc.ComputeHash(
				input.SubjectID, input.EventType, input.SchemaVersion,
				input.EventTime, input.Payload, state.prevHash,
			)
			if err != nil {
				return fmt.Errorf("compute hash: %w", err)
			}

			payloadJSON, err := json.Marshal(input.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}

			event := &model.EventModel{
				ID:            uuid.New().String(),
				TenantID:      tenantID,
				SubjectID:     input.SubjectID,
				EventType:     input.EventType,
				SchemaVersion: input.SchemaVersion,
				EventTime:     input.EventTime,
				Payload:       payloadJSON,
				PreviousHash:  state.prevHash,
				Hash:          eventHash,
				CreatedAt:     time.Now(),
			}
			events = append(events, event)

			hashCopy := eventHash
			state.prevHash = &hashCopy
			state.prevTime = input.EventTime
			state.hasPrev = true
		}

		if err := eventRepo.AppendBulk(events); err != nil {
			if repository.IsUniqueViolation(err) {
				return NewChainConflict("concurrent writer won the chain tip during bulk append", err)
			}
			return fmt.Errorf("append events: %w", err)
		}

		created = events
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, event := range created {
		metrics.RecordEventCreated(event.EventType)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastEvent(event)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"count":     len(created),
	}).Info("bulk created events")

	if triggerWorkflows {
		for _, event := range created {
			s.triggerWorkflows(ctx, event, tenantID)
		}
	}

	return created, nil
}

// GetEvent 根据 ID 查询事件
func (s *eventService) GetEvent(ctx context.Context, tenantID string, eventID string) (*model.EventModel, error) {
	eventRepo := repository.NewEventRepository(s.db.WithContext(ctx))
	event, err := eventRepo.GetByID(eventID, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("event %q not found", eventID)
		}
		return nil, err
	}
	return event, nil
}

// GetChain 查询主体事件链
func (s *eventService) GetChain(ctx context.Context, tenantID string, subjectID string, ascending bool) ([]*model.EventModel, error) {
	eventRepo := repository.NewEventRepository(s.db.WithContext(ctx))
	return eventRepo.GetChain(subjectID, tenantID, ascending)
}

// validatePayload 按声明的 Schema 版本校验负载
// 版本必须存在且处于激活状态: 已停用的版本不能用于新事件,
// 但用旧版本创建的历史事件永远有效
func (s *eventService) validatePayload(ctx context.Context, tenantID string, eventType string, version int, payload map[string]interface{}) error {
	if s.schemaSvc == nil {
		return nil
	}

	schemaModel, err := s.schemaSvc.GetByVersion(ctx, tenantID, eventType, version)
	if err != nil {
		return err
	}
	if schemaModel == nil {
		return NewNotFound("schema version %d not found for event type %q", version, eventType)
	}
	if !schemaModel.IsActive {
		return NewValidationFailed(
			fmt.Sprintf("schema version %d for event type %q is not active", version, eventType), nil)
	}

	if err := schema.Validate(tenantID, eventType, version, schemaModel.SchemaDefinition, payload); err != nil {
		return NewValidationFailed(err.Error(), err)
	}
	return nil
}

// triggerWorkflows 把已提交事件交给工作流引擎
// 引擎的任何失败都不能影响已提交的事件
func (s *eventService) triggerWorkflows(ctx context.Context, event *model.EventModel, tenantID string) {
	if s.processor == nil {
		return
	}

	executions, err := s.processor.ProcessTriggers(ctx, event, tenantID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.EventType,
		}).Error("workflow trigger processing failed")
		return
	}
	if len(executions) > 0 {
		s.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"workflows":  len(executions),
		}).Info("triggered workflows for event")
	}
}
