package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"undrgen/pkg/dataset"
	"undrgen/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// PushOptions 控制数据集镜像
type PushOptions struct {
	// Force 为 true 时忽略远端已存在的文件，全部重新上传
	Force   bool
	Workers int
	Logger  *slog.Logger
}

// PushStats 统计一次镜像的结果
type PushStats struct {
	Directories int
	Uploaded    int64
	Skipped     int64
	Bytes       int64
}

// Push 把 dir 之下的数据集从 e 的存储镜像到 dst
//
// 同一目录内先上传所有数据文件，再上传索引，
// 远端读者看到的索引引用的文件总是已经存在。
// 索引每次都会重新上传，数据文件在远端已存在时跳过 (除非 Force)。
func (e *Exporter) Push(ctx context.Context, dir string, dst storage.Store, opts PushOptions) (PushStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	var stats PushStats
	var uploaded, skipped, bytes atomic.Int64

	err := e.Walk(ctx, dir, func(d string, m *dataset.Manifest) error {
		stats.Directories++

		// 1. 并发上传数据文件
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, list := range [][]dataset.Entry{m.Files, m.OtherFiles} {
			for _, entry := range list {
				for _, c := range entry.Compressions {
					key := join(d, entry.Name+c.Suffix)
					size := c.Size
					g.Go(func() error {
						done, err := e.copyObject(gctx, dst, key, size, opts.Force)
						if err != nil {
							return err
						}
						if done {
							uploaded.Add(1)
							bytes.Add(size)
							logger.Debug("uploaded", "key", key, "size", size)
						} else {
							skipped.Add(1)
						}
						return nil
					})
				}
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// 2. 最后上传索引
		if _, err := e.copyObject(ctx, dst, join(d, dataset.IndexFileName), -1, true); err != nil {
			return err
		}
		logger.Info("pushed directory", "dir", d, "files", len(m.Files)+len(m.OtherFiles))
		return nil
	})

	stats.Uploaded = uploaded.Load()
	stats.Skipped = skipped.Load()
	stats.Bytes = bytes.Load()
	return stats, err
}

// copyObject 返回 false 表示远端已存在而跳过
func (e *Exporter) copyObject(ctx context.Context, dst storage.Store, key string, size int64, force bool) (bool, error) {
	if !force {
		exists, err := dst.Has(ctx, key)
		if err != nil {
			return false, fmt.Errorf("failed to check %s: %w", key, err)
		}
		if exists {
			return false, nil
		}
	}

	r, err := e.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer r.Close()

	if err := dst.Put(ctx, key, r, size); err != nil {
		return false, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return true, nil
}
