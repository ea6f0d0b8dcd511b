package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"undrgen/pkg/storage"
)

// Adapter 实现了 storage.Store 接口，把对象镜像到本地目录
type Adapter struct {
	rootPath string // 比如: /srv/undr/datasets
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回 key 对应的物理路径
// 拒绝绝对路径和 ".." 逃逸到根目录之外的 key
func (s *Adapter) layout(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return filepath.Join(s.rootPath, filepath.FromSlash(clean)), nil
}

func (s *Adapter) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	targetPath, err := s.layout(key)
	if err != nil {
		return err
	}

	// 1. 准备目录
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	// 2. 原子写入 (Atomic Write)
	// 先写到 .write 临时文件，然后 Rename。
	// 这样保证要么文件不存在，要么文件是完整的。
	f, err := CreateAtomic(targetPath)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Abort()
		return err
	}
	if size >= 0 && n != size {
		f.Abort()
		return fmt.Errorf("short write for %s: got %d bytes, want %d", key, n, size)
	}

	// 3. 移动到最终位置
	return f.Commit()
}

func (s *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, key string) (bool, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(targetPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
