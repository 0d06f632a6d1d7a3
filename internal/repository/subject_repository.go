package repository

import (
	"github.com/HSPiira/timeline-sub000/internal/model"
	"gorm.io/gorm"
)

// SubjectRepository 主体仓储接口
// 账本只消费 "主体是否属于租户" 这一个事实,其余是常规 CRUD
type SubjectRepository interface {
	Save(subject *model.SubjectModel) error
	FindByID(id string, tenantID string) (*model.SubjectModel, error)
	FindByIDForUpdate(id string, tenantID string) (*model.SubjectModel, error)
	ExistsInTenant(id string, tenantID string) (bool, error)
	ListForTenant(tenantID string, offset int, limit int) ([]*model.SubjectModel, error)
	CountForTenant(tenantID string) (int64, error)
}

// subjectRepository 主体仓储实现
type subjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository 创建主体仓储
func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

// Save 保存主体
func (r *subjectRepository) Save(subject *model.SubjectModel) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	return r.db.Create(subject).Error
}

// FindByID 根据 ID 查找主体(租户隔离)
func (r *subjectRepository) FindByID(id string, tenantID string) (*model.SubjectModel, error) {
	var subject model.SubjectModel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&subject).Error
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindByIDForUpdate 查找主体并加行级写锁
// 事件追加事务用它串行化同一主体的并发写入者:
// 读链尾、算哈希、落盘期间锁一直持有,直到事务结束
func (r *subjectRepository) FindByIDForUpdate(id string, tenantID string) (*model.SubjectModel, error) {
	var subject model.SubjectModel
	err := r.db.Clauses(LockingClause()).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&subject).Error
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsInTenant 判断主体是否属于租户
func (r *subjectRepository) ExistsInTenant(id string, tenantID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.SubjectModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Count(&count).Error
	return count > 0, err
}

// ListForTenant 分页列出租户的主体
func (r *subjectRepository) ListForTenant(tenantID string, offset int, limit int) ([]*model.SubjectModel, error) {
	var subjects []*model.SubjectModel
	err := r.db.
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&subjects).Error
	return subjects, err
}

// CountForTenant 统计租户主体数
func (r *subjectRepository) CountForTenant(tenantID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.SubjectModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
