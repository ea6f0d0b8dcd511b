package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdWindowSize 使用大窗口，事件流中的重复模式跨度很大
const zstdWindowSize = 16 << 20

type zstdCodec struct{}

// Zstd 以最高压缩等级编码，适合一次写入、多次下载的数据集
var Zstd Codec = zstdCodec{}

func (zstdCodec) Name() string   { return "zstd" }
func (zstdCodec) Suffix() string { return ".zst" }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithWindowSize(zstdWindowSize),
		// worker 池已经并发处理多个文件，单个编码器不再开协程
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc, nil
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return dec.IOReadCloser(), nil
}
