package service

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/HSPiira/timeline-sub000/internal/repository"
)

// ExportService 账本导出服务
// 把租户的全部事件链按主体导出为 gzip 压缩的 JSON Lines 文件,
// 事件自带哈希链,导出件可独立于数据库做离线校验与归档
type ExportService struct {
	db        *gorm.DB
	exportDir string
}

// ExportInfo 导出文件信息
type ExportInfo struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewExportService 创建账本导出服务
func NewExportService(db *gorm.DB, exportDir string) *ExportService {
	// 确保导出目录存在
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		// 如果创建失败，使用临时目录
		exportDir = os.TempDir()
	}

	return &ExportService{
		db:        db,
		exportDir: exportDir,
	}
}

// ExportTenant 导出租户的全部事件链
// 每行一个事件 JSON,按主体分组、链内按时间升序
func (s *ExportService) ExportTenant(ctx context.Context, tenantID string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("ledger_%s_%s.jsonl.gz", tenantID, timestamp)
	exportPath := filepath.Join(s.exportDir, filename)

	file, err := os.Create(exportPath)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	encoder := json.NewEncoder(gz)
	eventRepo := repository.NewEventRepository(s.db.WithContext(ctx))

	subjectIDs, err := eventRepo.ListSubjectIDs(tenantID)
	if err != nil {
		return "", fmt.Errorf("list subjects: %w", err)
	}

	// 分页遍历每条链,大租户导出不把整条链拉进内存
	const pageSize = 500
	for _, subjectID := range subjectIDs {
		for offset := 0; ; offset += pageSize {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			events, err := eventRepo.GetChainPage(subjectID, tenantID, offset, pageSize)
			if err != nil {
				return "", fmt.Errorf("load chain for subject %s: %w", subjectID, err)
			}
			for _, event := range events {
				if err := encoder.Encode(event); err != nil {
					return "", fmt.Errorf("encode event %s: %w", event.ID, err)
				}
			}
			if len(events) < pageSize {
				break
			}
		}
	}

	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("flush export file: %w", err)
	}
	return exportPath, nil
}

// ListExports 列出已有导出文件
func (s *ExportService) ListExports(ctx context.Context) ([]ExportInfo, error) {
	entries, err := os.ReadDir(s.exportDir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}

	var exports []ExportInfo
	for _, entry := range entries {
		if entry.IsDir() || !isExportFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		exports = append(exports, ExportInfo{
			Filename:  entry.Name(),
			Path:      filepath.Join(s.exportDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return exports, nil
}

// ExportDir 获取导出目录
func (s *ExportService) ExportDir() string {
	return s.exportDir
}

// DeleteExport 删除导出文件
func (s *ExportService) DeleteExport(ctx context.Context, filename string) error {
	// 只允许删除导出目录里的导出文件
	if filepath.Base(filename) != filename || !isExportFile(filename) {
		return fmt.Errorf("invalid export filename: %s", filename)
	}
	return os.Remove(filepath.Join(s.exportDir, filename))
}

// isExportFile 判断是否为导出文件
func isExportFile(filename string) bool {
	return strings.HasPrefix(filename, "ledger_") && strings.HasSuffix(filename, ".jsonl.gz")
}
