package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
	"github.com/HSPiira/timeline-sub000/internal/utils"
)

// SubjectCreate 注册主体的输入
type SubjectCreate struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
	Kind string `json:"kind"`
}

// SubjectService 主体管理服务接口
// 主体是事件链的锚点,必须先注册才能追加事件
type SubjectService interface {
	Create(ctx context.Context, tenantID string, input *SubjectCreate) (*model.SubjectModel, error)
	Get(ctx context.Context, tenantID string, id string) (*model.SubjectModel, error)
	List(ctx context.Context, tenantID string, offset int, limit int) ([]*model.SubjectModel, error)
}

// subjectService 主体管理服务实现
type subjectService struct {
	db       *gorm.DB
	auditSvc AuditLogService
	logger   *logrus.Logger
}

// NewSubjectService 创建主体管理服务
func NewSubjectService(db *gorm.DB, auditSvc AuditLogService, logger *logrus.Logger) SubjectService {
	return &subjectService{
		db:       db,
		auditSvc: auditSvc,
		logger:   logger,
	}
}

// Create 注册主体
// 允许调用方自带 ID 以对接外部系统的主键,缺省时生成 UUID
func (s *subjectService) Create(ctx context.Context, tenantID string, input *SubjectCreate) (*model.SubjectModel, error) {
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	} else if err := utils.ValidateIdentifier(id); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}
	name := utils.SanitizeString(input.Name)
	if err := utils.ValidateName(name); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}

	subject := &model.SubjectModel{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Kind:      input.Kind,
		CreatedAt: time.Now(),
	}
	if err := subject.Validate(); err != nil {
		return nil, NewValidationFailed(err.Error(), err)
	}

	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	if err := subjectRepo.Save(subject); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewConflict(fmt.Sprintf("subject %q already exists", id), err)
		}
		return nil, fmt.Errorf("create subject: %w", err)
	}

	if err := s.auditSvc.RecordAction(ctx, tenantID, "subject.create", "subject", subject.ID, map[string]interface{}{
		"name": subject.Name,
		"kind": subject.Kind,
	}); err != nil {
		s.logger.WithError(err).Warn("failed to record audit log")
	}
	return subject, nil
}

// Get 根据 ID 查询主体
func (s *subjectService) Get(ctx context.Context, tenantID string, id string) (*model.SubjectModel, error) {
	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	subject, err := subjectRepo.FindByID(id, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFound("subject %q not found", id)
		}
		return nil, err
	}
	return subject, nil
}

// List 分页列出租户的主体
func (s *subjectService) List(ctx context.Context, tenantID string, offset int, limit int) ([]*model.SubjectModel, error) {
	subjectRepo := repository.NewSubjectRepository(s.db.WithContext(ctx))
	return subjectRepo.ListForTenant(tenantID, offset, limit)
}
