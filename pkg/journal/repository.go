package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("run not found in journal")

// Repository 封装所有对转换日志的 SQL 操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// FileRecord 是 TaskRecord.Files 的元素
type FileRecord struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// -----------------------------------------------------------------------------
// 1. 运行 (Runs)
// -----------------------------------------------------------------------------

// BeginRun 创建一条 running 状态的运行记录
// description 会被序列化为 JSON 保存
func (r *Repository) BeginRun(ctx context.Context, source, target string, description any) (*Run, error) {
	desc, err := toJSON(description)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal description: %w", err)
	}

	run := &Run{
		ID:          uuid.NewString(),
		Source:      source,
		Target:      target,
		Description: desc,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.db.GetConn().WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun 写入任务数和最终状态；runErr 为 nil 表示成功
func (r *Repository) FinishRun(ctx context.Context, id string, tasks int, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	result := r.db.GetConn().WithContext(ctx).
		Model(&Run{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"error":       msg,
			"tasks":       tasks,
			"finished_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun 按完整 ID 或唯一前缀查找
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	var runs []Run
	err := r.db.GetConn().WithContext(ctx).
		Where("id LIKE ?", id+"%").
		Limit(2).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRuns 按开始时间倒序列出最近的运行
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := r.db.GetConn().WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// -----------------------------------------------------------------------------
// 2. 任务 (Tasks)
// -----------------------------------------------------------------------------

// RecordTask 追加一条任务记录，可以被多个 worker 并发调用
func (r *Repository) RecordTask(ctx context.Context, rec *TaskRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("task record for %q has no run id", rec.Source)
	}
	if err := r.db.GetConn().WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record task: %w", err)
	}
	return nil
}

// ListTasks 按记录顺序列出一次运行的任务
func (r *Repository) ListTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	var tasks []TaskRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

// CompletedSources 返回曾经成功转换到 target 的相对源路径
// 用于 --resume 跳过已经完成的文件
func (r *Repository) CompletedSources(ctx context.Context, target string) (map[string]struct{}, error) {
	var sources []string
	err := r.db.GetConn().WithContext(ctx).
		Model(&TaskRecord{}).
		Where("target = ? AND status = ?", target, TaskDone).
		Distinct().
		Pluck("source", &sources).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	done := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		done[s] = struct{}{}
	}
	return done, nil
}

// NewFiles 把写出的文件序列化为 TaskRecord.Files
func NewFiles(files []FileRecord) (datatypes.JSON, error) {
	if files == nil {
		files = []FileRecord{}
	}
	return toJSON(files)
}

// NewFlags 把数据问题标记序列化为 TaskRecord.Flags
func NewFlags(flags map[string]any) (datatypes.JSON, error) {
	if flags == nil {
		flags = map[string]any{}
	}
	return toJSON(flags)
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
