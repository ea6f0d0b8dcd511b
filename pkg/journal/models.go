package journal

import (
	"time"

	"gorm.io/datatypes"
)

// 运行状态
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// 任务状态
const (
	TaskDone    = "done"
	TaskFailed  = "failed"
	TaskSkipped = "skipped"
)

// Run 是一次 convert 的记录
type Run struct {
	// ID 是 UUID 字符串
	ID string `gorm:"primaryKey;type:char(36)"`

	Source string `gorm:"type:text;not null"`
	Target string `gorm:"index;type:varchar(1024);not null"`

	// Description: 数据集描述的快照 (名称、编码、worker 数等)
	Description datatypes.JSON

	Status string `gorm:"index;type:varchar(16);not null"`
	Error  string `gorm:"type:text"`
	Tasks  int

	StartedAt  time.Time `gorm:"index"`
	FinishedAt *time.Time
}

func (Run) TableName() string {
	return "runs"
}

// TaskRecord 是一个源文件的转换结果
type TaskRecord struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"index;type:char(36);not null"`

	// Target + Source 决定断点续跑时是否可以跳过
	Target string `gorm:"index:idx_task_target_source;type:varchar(1024);not null"`
	Source string `gorm:"index:idx_task_target_source;type:varchar(1024);not null"` // 相对源路径

	Status string `gorm:"type:varchar(16);not null"`
	Format string `gorm:"type:varchar(16)"`

	// Files: 写出的文件 [{"name": ..., "hash": ..., "size": ...}]
	Files datatypes.JSON
	// Flags: 可恢复的数据问题 {"aps_corrupted": true, "timestamp_resets": 3}
	Flags datatypes.JSON

	Error      string `gorm:"type:text"`
	DurationMS int64

	CreatedAt time.Time
}

func (TaskRecord) TableName() string {
	return "tasks"
}
