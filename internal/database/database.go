package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/config"
	"github.com/HSPiira/timeline-sub000/internal/model"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// Connect 连接数据库
// TranslateError 把各方言的唯一约束冲突翻译成 gorm.ErrDuplicatedKey,
// 追加路径依赖它识别链尾竞争
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := BuildDSN(cfg)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 从配置中读取连接池参数，如果没有配置则使用默认值
	var poolConfig *PoolConfig
	if cfg.MaxIdleConns > 0 || cfg.MaxOpenConns > 0 {
		poolConfig = &PoolConfig{
			MaxIdleConns:    cfg.MaxIdleConns,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}
		if poolConfig.MaxIdleConns == 0 {
			poolConfig.MaxIdleConns = 10
		}
		if poolConfig.MaxOpenConns == 0 {
			poolConfig.MaxOpenConns = 100
		}
		if poolConfig.ConnMaxLifetime == 0 {
			poolConfig.ConnMaxLifetime = 3600
		}
		if poolConfig.ConnMaxIdleTime == 0 {
			poolConfig.ConnMaxIdleTime = 600
		}
	} else {
		poolConfig = GetPoolConfig()
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb，需要手动创建表
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		// PostgreSQL 等其他数据库使用 AutoMigrate
		if err := db.AutoMigrate(
			&model.SubjectModel{},
			&model.EventSchemaModel{},
			&model.EventModel{},
			&model.WorkflowModel{},
			&model.WorkflowExecutionModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// 创建索引
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	// 数据库层的不可变保护
	if err := CreateImmutabilityTriggers(db); err != nil {
		return fmt.Errorf("failed to create immutability triggers: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表（使用 TEXT 替代 jsonb）
func createSQLiteTables(db *gorm.DB) error {
	// 创建 subjects 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS subjects (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			kind VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create subjects table: %w", err)
	}

	// 创建 event_schemas 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_schemas (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL,
			schema_definition TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 0,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (tenant_id, event_type, version)
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create event_schemas table: %w", err)
	}

	// 创建 events 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			subject_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			schema_version INTEGER NOT NULL,
			event_time DATETIME NOT NULL,
			payload TEXT NOT NULL,
			previous_hash VARCHAR(128),
			hash VARCHAR(128) NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	// 创建 workflows 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			trigger_event_type VARCHAR(64) NOT NULL,
			trigger_conditions TEXT,
			actions TEXT NOT NULL,
			execution_order INTEGER NOT NULL DEFAULT 0,
			max_executions_per_day INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}

	// 创建 workflow_executions 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_executions (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			workflow_id VARCHAR(64) NOT NULL,
			triggered_by_event_id VARCHAR(64),
			triggered_by_subject_id VARCHAR(64),
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			started_at DATETIME,
			completed_at DATETIME,
			actions_executed INTEGER DEFAULT 0,
			actions_failed INTEGER DEFAULT 0,
			execution_log TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create workflow_executions table: %w", err)
	}

	// 创建 audit_logs 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			actor_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create audit_logs table: %w", err)
	}

	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// subjects 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_subjects_tenant ON subjects(tenant_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_subjects_tenant: %w", err)
	}

	// event_schemas 表索引
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uq_schema_tenant_type_version ON event_schemas(tenant_id, event_type, version)").Error; err != nil {
		return fmt.Errorf("failed to create uq_schema_tenant_type_version: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_schemas_tenant_type_active ON event_schemas(tenant_id, event_type, is_active)").Error; err != nil {
		return fmt.Errorf("failed to create idx_schemas_tenant_type_active: %w", err)
	}

	// events 表索引: 链查询按主体 + 事件时间
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_subject_time ON events(tenant_id, subject_id, event_time)").Error; err != nil {
		return fmt.Errorf("failed to create idx_events_subject_time: %w", err)
	}
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uq_events_hash ON events(hash)").Error; err != nil {
		return fmt.Errorf("failed to create uq_events_hash: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_tenant_type ON events(tenant_id, event_type)").Error; err != nil {
		return fmt.Errorf("failed to create idx_events_tenant_type: %w", err)
	}

	// workflows 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_workflows_tenant_trigger ON workflows(tenant_id, trigger_event_type)").Error; err != nil {
		return fmt.Errorf("failed to create idx_workflows_tenant_trigger: %w", err)
	}

	// workflow_executions 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions(workflow_id, created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_workflow: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_event ON workflow_executions(triggered_by_event_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_event: %w", err)
	}

	// audit_logs 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_resource: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_tenant_created ON audit_logs(tenant_id, created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_tenant_created: %w", err)
	}

	// PostgreSQL 特定的 GIN 索引
	if dialector == "postgres" {
		// JSONB 字段的 GIN 索引
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_payload_gin ON events USING GIN (payload)").Error; err != nil {
			return fmt.Errorf("failed to create idx_events_payload_gin: %w", err)
		}
	}

	return nil
}

// CreateImmutabilityTriggers 创建不可变保护触发器
// 应用层的 GORM 钩子挡不住绕过 ORM 的直接 SQL,数据库触发器是最后一道防线
func CreateImmutabilityTriggers(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	if dialector == "postgres" {
		if err := db.Exec(`
			CREATE OR REPLACE FUNCTION reject_event_mutation() RETURNS trigger AS $$
			BEGIN
				RAISE EXCEPTION 'events are append-only and cannot be % ', TG_OP;
			END;
			$$ LANGUAGE plpgsql
		`).Error; err != nil {
			return fmt.Errorf("failed to create reject_event_mutation function: %w", err)
		}
		if err := db.Exec(`
			DROP TRIGGER IF EXISTS trg_events_no_update ON events
		`).Error; err != nil {
			return fmt.Errorf("failed to drop trg_events_no_update: %w", err)
		}
		if err := db.Exec(`
			CREATE TRIGGER trg_events_no_update
			BEFORE UPDATE OR DELETE ON events
			FOR EACH ROW EXECUTE FUNCTION reject_event_mutation()
		`).Error; err != nil {
			return fmt.Errorf("failed to create trg_events_no_update: %w", err)
		}
		return nil
	}

	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := db.Exec(`
			CREATE TRIGGER IF NOT EXISTS trg_events_no_update
			BEFORE UPDATE ON events
			BEGIN
				SELECT RAISE(ABORT, 'events are append-only and cannot be updated');
			END
		`).Error; err != nil {
			return fmt.Errorf("failed to create trg_events_no_update: %w", err)
		}
		if err := db.Exec(`
			CREATE TRIGGER IF NOT EXISTS trg_events_no_delete
			BEFORE DELETE ON events
			BEGIN
				SELECT RAISE(ABORT, 'events are append-only and cannot be deleted');
			END
		`).Error; err != nil {
			return fmt.Errorf("failed to create trg_events_no_delete: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试，等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return false
	}

	return true
}

// Reconnect 重新连接数据库
func Reconnect(cfg config.DatabaseConfig, oldDB *gorm.DB) (*gorm.DB, error) {
	// 关闭旧连接
	if oldDB != nil {
		if sqlDB, err := oldDB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	// 重新连接
	return Connect(cfg)
}
