package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/cache"
	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/schema"
	"github.com/HSPiira/timeline-sub000/internal/utils"
)

// activeSchemaCacheTTL 激活版本缓存时长
// 变更路径会同步失效缓存,TTL 只是 Redis 异常时的兜底
const activeSchemaCacheTTL = 5 * time.Minute

// SchemaCreate 注册新 Schema 版本的输入
type SchemaCreate struct {
	EventType  string          `json:"event_type" binding:"required"`
	Definition json.RawMessage `json:"definition" binding:"required"`
	Activate   bool            `json:"activate"`
}

// SchemaService Schema 注册表服务接口
// 维护每个租户事件类型的版本序列,保证激活版本唯一
type SchemaService interface {
	CreateVersion(ctx context.Context, tenantID string, input *SchemaCreate) (*model.EventSchemaModel, error)
	GetActiveSchema(ctx context.Context, tenantID string, eventType string) (*model.EventSchemaModel, error)
	GetByVersion(ctx context.Context, tenantID string, eventType string, version int) (*model.EventSchemaModel, error)
	GetByID(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error)
	ListVersions(ctx context.Context, tenantID string, eventType string) ([]*model.EventSchemaModel, error)
	ListForTenant(ctx context.Context, tenantID string, offset int, limit int) ([]*model.EventSchemaModel, error)
	Activate(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error)
	Deactivate(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error)
	DeleteVersion(ctx context.Context, tenantID string, id string) error
}

// schemaService Schema 注册表服务实现
type schemaService struct {
	db       *gorm.DB
	cache    cache.Cache
	auditSvc AuditLogService
	logger   *logrus.Logger
}

// NewSchemaService 创建 Schema 注册表服务
func NewSchemaService(db *gorm.DB, c cache.Cache, auditSvc AuditLogService, logger *logrus.Logger) SchemaService {
	return &schemaService{
		db:       db,
		cache:    c,
		auditSvc: auditSvc,
		logger:   logger,
	}
}

// activeSchemaCacheKey 激活版本的缓存键
func activeSchemaCacheKey(tenantID, eventType string) string {
	return fmt.Sprintf("timeline:schema:active:%s:%s", tenantID, eventType)
}

// CreateVersion 注册新 Schema 版本
//
// 版本号由服务端分配(当前最大版本 + 1),调用方不能指定。
// 定义先编译把关,非法定义在入库前拒绝。Activate 为真时,
// 停用旧激活版本与插入新版本在同一事务内完成,不存在双激活窗口。
func (s *schemaService) CreateVersion(ctx context.Context, tenantID string, input *SchemaCreate) (*model.EventSchemaModel, error) {
	if err := utils.ValidateEventType(input.EventType); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}
	if len(input.Definition) == 0 {
		return nil, NewValidationFailed("schema definition is required", nil)
	}

	var created *model.EventSchemaModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schemaRepo := repository.NewEventSchemaRepository(tx)

		version, err := schemaRepo.GetNextVersion(tenantID, input.EventType)
		if err != nil {
			return fmt.Errorf("allocate version: %w", err)
		}

		if _, err := schema.Compile(tenantID, input.EventType, version, input.Definition); err != nil {
			return NewValidationFailed(err.Error(), err)
		}

		if input.Activate {
			if err := schemaRepo.DeactivateAllForEventType(tenantID, input.EventType); err != nil {
				return fmt.Errorf("deactivate previous versions: %w", err)
			}
		}

		record := &model.EventSchemaModel{
			ID:               uuid.New().String(),
			TenantID:         tenantID,
			EventType:        input.EventType,
			Version:          version,
			SchemaDefinition: input.Definition,
			IsActive:         input.Activate,
			CreatedBy:        actorOrSystem(ctx),
			CreatedAt:        time.Now(),
		}
		if err := schemaRepo.Create(record); err != nil {
			if repository.IsUniqueViolation(err) {
				return NewConflict("schema version allocation lost to a concurrent writer, retry", err)
			}
			return fmt.Errorf("create schema version: %w", err)
		}

		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActiveCache(ctx, tenantID, input.EventType)
	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"event_type": input.EventType,
		"version":    created.Version,
		"active":     created.IsActive,
	}).Info("registered schema version")

	if err := s.auditSvc.RecordAction(ctx, tenantID, "schema.create", "event_schema", created.ID, map[string]interface{}{
		"event_type": created.EventType,
		"version":    created.Version,
		"activated":  created.IsActive,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}

	return created, nil
}

// GetActiveSchema 查询当前激活版本
// 读穿缓存: 命中直接返回,未命中回源并回填;无激活版本返回 nil
func (s *schemaService) GetActiveSchema(ctx context.Context, tenantID string, eventType string) (*model.EventSchemaModel, error) {
	key := activeSchemaCacheKey(tenantID, eventType)
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			var cached model.EventSchemaModel
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			s.cache.Delete(ctx, key)
		}
	}

	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	active, err := schemaRepo.GetActiveSchema(tenantID, eventType)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(active); err == nil {
			s.cache.Set(ctx, key, data, activeSchemaCacheTTL)
		}
	}
	return active, nil
}

// GetByVersion 查询指定版本,不存在返回 nil
func (s *schemaService) GetByVersion(ctx context.Context, tenantID string, eventType string, version int) (*model.EventSchemaModel, error) {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	return schemaRepo.GetByVersion(tenantID, eventType, version)
}

// GetByID 根据 ID 查询版本
func (s *schemaService) GetByID(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error) {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	record, err := schemaRepo.GetByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("schema %q not found", id)
		}
		return nil, err
	}
	return record, nil
}

// ListVersions 列出事件类型的全部版本
func (s *schemaService) ListVersions(ctx context.Context, tenantID string, eventType string) ([]*model.EventSchemaModel, error) {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	return schemaRepo.ListForEventType(tenantID, eventType)
}

// ListForTenant 分页列出租户的全部 Schema
func (s *schemaService) ListForTenant(ctx context.Context, tenantID string, offset int, limit int) ([]*model.EventSchemaModel, error) {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	return schemaRepo.ListForTenant(tenantID, offset, limit)
}

// Activate 激活指定版本
// 同一事务内先停用同类型其他版本,再激活目标版本
func (s *schemaService) Activate(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error) {
	var record *model.EventSchemaModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schemaRepo := repository.NewEventSchemaRepository(tx)

		found, err := schemaRepo.GetByID(id, tenantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFound("schema %q not found", id)
			}
			return err
		}

		if err := schemaRepo.DeactivateAllForEventType(tenantID, found.EventType); err != nil {
			return fmt.Errorf("deactivate previous versions: %w", err)
		}
		if err := schemaRepo.SetActive(id, tenantID, true); err != nil {
			return err
		}

		found.IsActive = true
		record = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateActiveCache(ctx, tenantID, record.EventType)
	if err := s.auditSvc.RecordAction(ctx, tenantID, "schema.activate", "event_schema", id, map[string]interface{}{
		"event_type": record.EventType,
		"version":    record.Version,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}
	return record, nil
}

// Deactivate 停用指定版本
// 停用后该版本不能再用于新事件,历史事件不受影响
func (s *schemaService) Deactivate(ctx context.Context, tenantID string, id string) (*model.EventSchemaModel, error) {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))

	record, err := schemaRepo.GetByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("schema %q not found", id)
		}
		return nil, err
	}

	if err := schemaRepo.SetActive(id, tenantID, false); err != nil {
		return nil, err
	}
	record.IsActive = false

	s.invalidateActiveCache(ctx, tenantID, record.EventType)
	if err := s.auditSvc.RecordAction(ctx, tenantID, "schema.deactivate", "event_schema", id, map[string]interface{}{
		"event_type": record.EventType,
		"version":    record.Version,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}
	return record, nil
}

// DeleteVersion 删除 Schema 版本
// 被任何现存事件引用的版本不可删除,事件是不可变的,它们的校验依据也必须保留
func (s *schemaService) DeleteVersion(ctx context.Context, tenantID string, id string) error {
	schemaRepo := repository.NewEventSchemaRepository(s.db.WithContext(ctx))
	eventRepo := repository.NewEventRepository(s.db.WithContext(ctx))

	record, err := schemaRepo.GetByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFound("schema %q not found", id)
		}
		return err
	}

	count, err := eventRepo.CountByEventTypeAndSchemaVersion(tenantID, record.EventType, record.Version)
	if err != nil {
		return fmt.Errorf("count referencing events: %w", err)
	}
	if count > 0 {
		return NewConflict(
			fmt.Sprintf("schema version %d is referenced by %d events and cannot be deleted", record.Version, count), nil)
	}

	if err := schemaRepo.Delete(id, tenantID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFound("schema %q not found", id)
		}
		return err
	}

	if record.IsActive {
		s.invalidateActiveCache(ctx, tenantID, record.EventType)
	}
	if err := s.auditSvc.RecordAction(ctx, tenantID, "schema.delete", "event_schema", id, map[string]interface{}{
		"event_type": record.EventType,
		"version":    record.Version,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}
	return nil
}

// invalidateActiveCache 同步失效激活版本缓存
func (s *schemaService) invalidateActiveCache(ctx context.Context, tenantID, eventType string) {
	if s.cache != nil {
		s.cache.Delete(ctx, activeSchemaCacheKey(tenantID, eventType))
	}
}
