// Package exporter 从数据集 (本地目录或任意 storage.Store 镜像) 中读出文件，
// 一边解压一边校验索引里记录的哈希和大小。
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"undrgen/pkg/compress"
	"undrgen/pkg/core"
	"undrgen/pkg/dataset"
	"undrgen/pkg/storage"
)

var (
	ErrHashMismatch  = errors.New("content does not match the index")
	ErrEntryNotFound = errors.New("file not found in index")
	ErrNoCodec       = errors.New("no supported compression for file")
)

type Exporter struct {
	store storage.Store
}

// NewExporter 的 store 以数据集根目录为 key 的根
func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// join 拼接数据集内的 key，根目录用 "" 或 "." 表示
func join(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return path.Join(dir, name)
}

// Manifest 读取 dir 的索引
func (e *Exporter) Manifest(ctx context.Context, dir string) (*dataset.Manifest, error) {
	r, err := e.store.Get(ctx, join(dir, dataset.IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to get index of %q: %w", dir, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return dataset.ParseManifest(data)
}

// pick 选择第一个本程序能解码的压缩编码
func pick(entry dataset.Entry) (dataset.Compression, compress.Codec, error) {
	for _, c := range entry.Compressions {
		if c.Codec != "" {
			if codec, err := compress.Lookup(c.Codec); err == nil {
				return c, codec, nil
			}
		}
		// 旧索引可能只有后缀
		if codec, ok := compress.BySuffix(c.Suffix); ok {
			return c, codec, nil
		}
	}
	return dataset.Compression{}, nil, fmt.Errorf("%w: %s", ErrNoCodec, entry.Name)
}

// ExportFile 把 dir 下名为 name 的文件解压写入 w
//
// 数据是流式写出的：校验失败时 w 已经收到了全部内容，调用方应丢弃它。
func (e *Exporter) ExportFile(ctx context.Context, dir, name string, w io.Writer) (dataset.Entry, error) {
	// 1. 查索引
	m, err := e.Manifest(ctx, dir)
	if err != nil {
		return dataset.Entry{}, err
	}
	entry, ok := m.Lookup(name)
	if !ok {
		return dataset.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, join(dir, name))
	}
	return entry, e.ExportEntry(ctx, dir, entry, w)
}

// ExportEntry 解压一个已知条目，并校验压缩前后的哈希与大小
func (e *Exporter) ExportEntry(ctx context.Context, dir string, entry dataset.Entry, w io.Writer) error {
	c, codec, err := pick(entry)
	if err != nil {
		return err
	}

	// 1. 打开存储的压缩文件
	key := join(dir, entry.Name+c.Suffix)
	src, err := e.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer src.Close()

	// 2. 压缩字节先过哈希，再进解码器
	packed := core.NewHasher()
	dec, err := codec.NewReader(io.TeeReader(src, packed))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	defer dec.Close()

	// 3. 解压后的字节写给调用方，同时计算哈希
	raw := core.NewHasher()
	if _, err := io.Copy(io.MultiWriter(w, raw), dec); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	// 解码器可能没有读到流的末尾 (例如尾部多余的字节)
	if _, err := io.Copy(packed, src); err != nil {
		return err
	}

	// 4. 校验
	if packed.Size() != c.Size || packed.Sum() != c.Hash {
		return fmt.Errorf("%w: %s compressed (size %d, hash %s), index says (size %d, hash %s)",
			ErrHashMismatch, key, packed.Size(), packed.Sum().Short(), c.Size, c.Hash.Short())
	}
	if raw.Size() != entry.Size || raw.Sum() != entry.Hash {
		return fmt.Errorf("%w: %s content (size %d, hash %s), index says (size %d, hash %s)",
			ErrHashMismatch, key, raw.Size(), raw.Sum().Short(), entry.Size, entry.Hash.Short())
	}
	return nil
}

// WalkFunc 对每个目录调用一次，dir 是相对数据集根的 key
type WalkFunc func(dir string, m *dataset.Manifest) error

// Walk 从 dir 开始深度优先遍历索引
func (e *Exporter) Walk(ctx context.Context, dir string, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := e.Manifest(ctx, dir)
	if err != nil {
		return err
	}
	if err := fn(dir, m); err != nil {
		return err
	}
	for _, sub := range m.Directories {
		if err := e.Walk(ctx, join(dir, sub), fn); err != nil {
			return err
		}
	}
	return nil
}

// Problem 是校验发现的一个问题
type Problem struct {
	Key string
	Err error
}

// Verify 解压并校验 dir 之下的所有文件
// 单个文件的问题被收集起来，不会中断遍历
func (e *Exporter) Verify(ctx context.Context, dir string, onFile func(key string)) ([]Problem, error) {
	var problems []Problem
	err := e.Walk(ctx, dir, func(d string, m *dataset.Manifest) error {
		for _, list := range [][]dataset.Entry{m.Files, m.OtherFiles} {
			for _, entry := range list {
				key := join(d, entry.Name)
				if onFile != nil {
					onFile(key)
				}
				if err := e.ExportEntry(ctx, d, entry, io.Discard); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					problems = append(problems, Problem{Key: key, Err: err})
				}
			}
		}
		return nil
	})
	return problems, err
}
