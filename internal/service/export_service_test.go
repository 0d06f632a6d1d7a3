package service_test

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/service"
)

// TestExportService_ExportTenant 导出件按主体分组、链内升序
func TestExportService_ExportTenant(t *testing.T) {
	svcs := setupServices(t)
	mustCreateSubject(t, svcs, "tenant-a", "subj-1")
	mustRegisterSchema(t, svcs, "tenant-a", "visit.recorded")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		mustCreateEvent(t, svcs, "tenant-a", "subj-1", "visit.recorded", 1,
			base.Add(time.Duration(i)*time.Minute), map[string]interface{}{"n": i})
	}

	exportSvc := service.NewExportService(svcs.db, t.TempDir())
	path, err := exportSvc.ExportTenant(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != "")

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	var events []model.EventModel
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var event model.EventModel
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 3)
	assert.Nil(t, events[0].PreviousHash)
	require.NotNil(t, events[1].PreviousHash)
	assert.Equal(t, events[0].Hash, *events[1].PreviousHash)
	assert.Equal(t, events[1].Hash, *events[2].PreviousHash)
}

// TestExportService_ListAndDelete 导出文件管理
func TestExportService_ListAndDelete(t *testing.T) {
	svcs := setupServices(t)
	exportSvc := service.NewExportService(svcs.db, t.TempDir())

	path, err := exportSvc.ExportTenant(context.Background(), "tenant-a")
	require.NoError(t, err)

	exports, err := exportSvc.ListExports(context.Background())
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, filepath.Base(path), exports[0].Filename)

	// 路径穿越被拒绝
	err = exportSvc.DeleteExport(context.Background(), "../"+exports[0].Filename)
	assert.Error(t, err)
	err = exportSvc.DeleteExport(context.Background(), "random.txt")
	assert.Error(t, err)

	require.NoError(t, exportSvc.DeleteExport(context.Background(), exports[0].Filename))
	exports, err = exportSvc.ListExports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, exports)
}
