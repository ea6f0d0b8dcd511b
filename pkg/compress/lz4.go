package compress

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

type lz4Codec struct{}

// LZ4 压缩比较低但解码极快，适合需要频繁回放的场景
var LZ4 Codec = lz4Codec{}

func (lz4Codec) Name() string   { return "lz4" }
func (lz4Codec) Suffix() string { return ".lz4" }

func (lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	err := zw.Apply(
		lz4.CompressionLevelOption(lz4.Level9),
		lz4.BlockSizeOption(lz4.Block4Mb),
		lz4.ChecksumOption(true),
	)
	if err != nil {
		return nil, fmt.Errorf("lz4 writer options: %w", err)
	}
	// 立即写出帧头，空文件也是合法的 LZ4 帧
	if _, err := zw.Write(nil); err != nil {
		return nil, fmt.Errorf("lz4 frame header: %w", err)
	}
	return zw, nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
