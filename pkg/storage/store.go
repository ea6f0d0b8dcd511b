package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Store 是数据集文件的镜像后端 (本地目录、S3 兼容存储等)
// Key 是相对数据集根目录、以 "/" 分隔的路径，例如 "dvs09/user01/-index.json"
type Store interface {
	// Put 写入一个对象，已存在时覆盖
	// size 为 -1 表示未知长度
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get 读取对象
	// 返回 io.ReadCloser 而不是 []byte，压缩后的录制文件可能有数百 MB
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Has 检查对象是否存在 (push 时用于跳过已上传的文件)
	Has(ctx context.Context, key string) (bool, error)
}
