package journal

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo 构建隔离的测试环境 (每个测试一个内存库)
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	journalDB := NewWithConn(db)
	require.NoError(t, journalDB.AutoMigrate())

	return NewRepository(journalDB)
}

// mustBeginRun 创建运行记录，失败直接终止测试
func mustBeginRun(t *testing.T, repo *Repository, source, target string) *Run {
	t.Helper()
	run, err := repo.BeginRun(context.Background(), source, target, map[string]any{"name": "test"})
	require.NoError(t, err)
	return run
}

// mustRecord 记录一个任务，失败则终止
func mustRecord(t *testing.T, repo *Repository, runID, target, source, status string, msgAndArgs ...any) {
	t.Helper()
	err := repo.RecordTask(context.Background(), &TaskRecord{
		RunID:  runID,
		Target: target,
		Source: source,
		Status: status,
	})
	require.NoError(t, err, msgAndArgs...)
}
