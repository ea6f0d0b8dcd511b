package dataset

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebouncePeriod 是两次合并写入之间的最短间隔
const DefaultDebouncePeriod = time.Second

// Debouncer 合并频繁的索引变更，按固定周期把脏目录写盘
//
// 后台 goroutine 挂在 ticker 上，stop channel 唤醒它做最后一次全量刷新。
// 写盘错误会记录日志，并由 Close 汇总返回。
type Debouncer struct {
	period time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	dirs   []*Directory
	dirty  []bool
	closed bool

	errMu sync.Mutex
	err   error

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDebouncer 启动后台刷新 goroutine
// period <= 0 时使用 DefaultDebouncePeriod；logger 为 nil 时使用 slog.Default()
func NewDebouncer(period time.Duration, logger *slog.Logger) *Debouncer {
	if period <= 0 {
		period = DefaultDebouncePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Debouncer{
		period: period,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Debouncer) register(d *Directory) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs = append(b.dirs, d)
	b.dirty = append(b.dirty, false)
	return len(b.dirs) - 1
}

// set 标记目录为脏
// 返回 false 表示 debouncer 已关闭，调用方需要自己同步保存
func (b *Debouncer) set(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.dirty[id] = true
	return true
}

func (b *Debouncer) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush(false)
		case <-b.stop:
			b.flush(true)
			return
		}
	}
}

// flush 保存脏目录；final 为 true 时保存所有已注册的目录
func (b *Debouncer) flush(final bool) {
	// 1. 在锁内取出待保存的目录并清除标记
	b.mu.Lock()
	var pending []*Directory
	for i, d := range b.dirs {
		if final || b.dirty[i] {
			pending = append(pending, d)
		}
		b.dirty[i] = false
	}
	if final {
		b.closed = true
	}
	b.mu.Unlock()

	// 2. 在锁外写盘，Save 自己会获取目录锁
	for _, d := range pending {
		if err := d.Save(); err != nil {
			b.logger.Error("failed to save index", "path", d.indexPath, "error", err)
			b.errMu.Lock()
			b.err = errors.Join(b.err, err)
			b.errMu.Unlock()
		}
	}
}

// Close 停止后台 goroutine，保存所有已注册的目录，并等待其退出
// 之后的索引变更由目录同步保存
func (b *Debouncer) Close() error {
	b.closeOnce.Do(func() { close(b.stop) })
	<-b.done
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}
