// Package compress 提供数据集文件使用的流式压缩编码。
//
// 每个文件只生成一种编码，但索引会记录编码名称，
// 因此同一文件将来可以并存多种编码。
package compress

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

var ErrUnknownCodec = errors.New("unknown compression codec")

// Codec 是一种流式压缩编码
type Codec interface {
	// Name 写入索引的 compressions[].type 字段
	Name() string
	// Suffix 是存储文件名的后缀，包含开头的 "."
	Suffix() string
	// NewWriter 包装 w，Close 时必须写出尾部数据 (trailer)，但不关闭 w
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader 解压 r 中的数据
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var registry = map[string]Codec{
	Zstd.Name(): Zstd,
	LZ4.Name():  LZ4,
}

// Default 返回默认编码 (zstd, 最高压缩比)
func Default() Codec { return Zstd }

// Lookup 按名称查找编码，空字符串返回默认编码
func Lookup(name string) (Codec, error) {
	if name == "" {
		return Default(), nil
	}
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownCodec, name, Names())
	}
	return c, nil
}

// BySuffix 根据文件后缀反查编码，用于读取已存储的文件
func BySuffix(suffix string) (Codec, bool) {
	for _, c := range registry {
		if c.Suffix() == suffix {
			return c, true
		}
	}
	return nil, false
}

// Names 返回所有已注册的编码名称 (已排序)
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
