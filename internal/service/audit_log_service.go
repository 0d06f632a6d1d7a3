package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/HSPiira/timeline-sub000/internal/auth"
	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/repository"
)

// actorOrSystem 从 context 提取操作者,缺失时记为 system
func actorOrSystem(ctx context.Context) string {
	if actor := auth.ActorFromContext(ctx); actor != "" {
		return actor
	}
	return "system"
}

// AuditLogService 审计日志服务接口
type AuditLogService interface {
	RecordAction(ctx context.Context, tenantID string, action string, resourceType string, resourceID string, details interface{}) error
	ListForTenant(ctx context.Context, tenantID string, offset int, limit int) ([]*model.AuditLogModel, error)
	ListForResource(ctx context.Context, tenantID string, resourceType string, resourceID string) ([]*model.AuditLogModel, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

// RecordAction 记录管理操作审计日志
// 操作者与请求信息从 context 提取,缺失时记为 system
func (s *auditLogService) RecordAction(
	ctx context.Context,
	tenantID string,
	action string,
	resourceType string,
	resourceID string,
	details interface{},
) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	actorID := actorOrSystem(ctx)

	auditLog := &model.AuditLogModel{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    auth.RequestIDFromContext(ctx),
		IP:           auth.ClientIPFromContext(ctx),
		UserAgent:    auth.UserAgentFromContext(ctx),
		Details:      detailsJSON,
		CreatedAt:    time.Now(),
	}

	return s.auditRepo.Save(auditLog)
}

// ListForTenant 分页列出租户审计日志
func (s *auditLogService) ListForTenant(ctx context.Context, tenantID string, offset int, limit int) ([]*model.AuditLogModel, error) {
	return s.auditRepo.ListForTenant(tenantID, offset, limit)
}

// ListForResource 列出指定资源的审计日志
func (s *auditLogService) ListForResource(ctx context.Context, tenantID string, resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.ListForResource(tenantID, resourceType, resourceID)
}
