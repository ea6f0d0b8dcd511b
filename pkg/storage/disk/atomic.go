package disk

import (
	"fmt"
	"os"
)

// TempSuffix 是发布前临时文件的后缀
// 最终路径只会通过 rename 出现，读者永远看不到写了一半的文件
const TempSuffix = ".write"

// AtomicFile 是一个写入 "<final>.write" 的文件，Commit 时 rename 到最终路径
type AtomicFile struct {
	*os.File
	final string
	done  bool
}

// CreateAtomic 创建 (或截断) final 对应的临时文件
// 上次崩溃遗留的同名临时文件会被直接覆盖
func CreateAtomic(final string) (*AtomicFile, error) {
	f, err := os.OpenFile(final+TempSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: f, final: final}, nil
}

// Path 返回最终路径
func (f *AtomicFile) Path() string { return f.final }

// Commit 刷盘、关闭并 rename 到最终路径
func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("atomic file %s already finished", f.final)
	}
	f.done = true

	// 1. 先 fsync，再 rename，保证最终路径上的内容完整
	if err := f.Sync(); err != nil {
		f.File.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}

	// 2. 同目录 rename 是原子的
	if err := os.Rename(f.Name(), f.final); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

// Abort 关闭并删除临时文件，最终路径保持不变
// 对已经结束的文件调用是空操作
func (f *AtomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.File.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteFileAtomic 原子地把 data 写到 path
func WriteFileAtomic(path string, data []byte) error {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}
