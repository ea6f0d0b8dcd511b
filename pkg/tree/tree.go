// Package tree 遍历源目录树，按规则映射目标名称，
// 然后把每个源文件交给调用方提供的处理函数，在固定大小的 worker 池中执行。
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"undrgen/pkg/compress"
	"undrgen/pkg/dataset"

	"golang.org/x/sync/errgroup"
)

// Task 是一个待转换的源文件
// Index/Total 在全部枚举完成后才写入，处理函数可以直接用来打印进度
type Task struct {
	Source     string             // 源文件路径
	SourceRoot string             // 源目录树的根
	Relative   string             // 相对 SourceRoot 的 "/" 分隔路径
	Directory  *dataset.Directory // 目标目录
	Name       string             // 应用规则后的目标名称 (含源扩展名)
	Index      int
	Total      int
}

// Handler 转换一个任务；返回的第一个错误会取消整次运行
type Handler func(ctx context.Context, task Task) error

// Tasks 枚举 source 下的所有文件
//
// 每一层先目录后文件，各自按名称排序；同一层的文件全部列出后才递归进入子目录。
// 目标子目录在枚举过程中创建。
func Tasks(source string, target *dataset.Directory, rules []Rule) ([]Task, error) {
	var tasks []Task
	if err := walk(source, source, target, rules, &tasks); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Index = i
		tasks[i].Total = len(tasks)
	}
	return tasks, nil
}

type child struct {
	source string
	rel    string
	target string
}

func walk(dir, root string, target *dataset.Directory, rules []Rule, tasks *[]Task) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	// 1. 分组：目录在前，文件在后，组内按名称排序
	var dirs, files []child
	for _, e := range entries {
		src := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(root, src)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		name, skip := Evaluate(rules, rel, e.Name())
		if skip {
			continue
		}
		isDir, err := isDirectory(src, e)
		if err != nil {
			return err
		}
		c := child{source: src, rel: rel, target: name}
		if isDir {
			dirs = append(dirs, c)
		} else {
			files = append(files, c)
		}
	}
	byName := func(list []child) {
		sort.Slice(list, func(i, j int) bool { return path.Base(list[i].rel) < path.Base(list[j].rel) })
	}
	byName(dirs)
	byName(files)

	// 2. 本层文件
	for _, f := range files {
		*tasks = append(*tasks, Task{
			Source:     f.source,
			SourceRoot: root,
			Relative:   f.rel,
			Directory:  target,
			Name:       f.target,
		})
	}

	// 3. 递归子目录
	for _, d := range dirs {
		sub, err := target.CreateSubdirectory(d.target)
		if err != nil {
			return fmt.Errorf("%s: %w", d.rel, err)
		}
		if err := walk(d.source, root, sub, rules, tasks); err != nil {
			return err
		}
	}
	return nil
}

// isDirectory 跟随符号链接
func isDirectory(p string, e os.DirEntry) (bool, error) {
	if e.Type()&os.ModeSymlink == 0 {
		return e.IsDir(), nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Run 在最多 workers 个 goroutine 中执行任务
// workers <= 0 时使用 CPU 数；第一个错误取消尚未开始的任务并被返回
func Run(ctx context.Context, tasks []Task, workers int, handle Handler) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := handle(ctx, task); err != nil {
				return fmt.Errorf("%s: %w", task.Relative, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Options 控制 CopyTree
type Options struct {
	Workers        int
	DebouncePeriod time.Duration
	Codec          compress.Codec
	Logger         *slog.Logger
}

// CopyTree 打开 target 作为数据集根目录，枚举 source，并发执行 handle
// 返回前关闭 debouncer，保证所有索引都已落盘
func CopyTree(ctx context.Context, source, target string, rules []Rule, handle Handler, opts Options) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deb := dataset.NewDebouncer(opts.DebouncePeriod, logger)
	defer func() {
		err = errors.Join(err, deb.Close())
	}()

	root, err := dataset.OpenDirectory(target, dataset.Options{Debouncer: deb, Codec: opts.Codec})
	if err != nil {
		return err
	}

	tasks, err := Tasks(source, root, rules)
	if err != nil {
		return err
	}
	logger.Info("enumerated source tree", "source", source, "target", target, "tasks", len(tasks))

	return Run(ctx, tasks, opts.Workers, handle)
}
