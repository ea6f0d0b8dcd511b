package dataset

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"undrgen/pkg/compress"
	"undrgen/pkg/core"
	"undrgen/pkg/events"
	"undrgen/pkg/storage/disk"
	"undrgen/pkg/types"
)

// copyChunkSize 是 ReadFrom 每次读取的字节数
const copyChunkSize = 1 << 20

type fileState uint8

const (
	stateOpen fileState = iota
	stateSealed
	stateAborted
)

// File 是一个正在写入的数据集文件
//
// 数据流: Write -> 未压缩哈希 -> 编码器 -> 压缩哈希 + 临时文件。
// Close 结束编码、发布文件并登记索引；之后 File 进入 Sealed 状态。
// File 不支持并发写入，不同的 File 可以并发使用。
type File struct {
	dir      *Directory
	name     string         // 索引中的名称，例如 "recording.dvs"
	layout   *events.Layout // nil 表示 other file
	metadata types.Metadata
	codec    compress.Codec

	out    *disk.AtomicFile
	buf    *bufio.Writer
	enc    io.WriteCloser
	raw    *core.Hasher // 未压缩内容
	packed *core.Hasher // 压缩后的内容

	state fileState
	entry Entry
}

// CreateFile 创建一个类型化文件，存储名为 "<name>.<ext><suffix>"
func (d *Directory) CreateFile(layout events.Layout, name string, metadata types.Metadata) (*File, error) {
	if layout.Stride() == 0 {
		return nil, fmt.Errorf("%w: unsupported layout %v", ErrLayoutMismatch, layout.Kind)
	}
	l := layout
	return d.createFile(name+"."+layout.Extension(), &l, metadata)
}

// CreateOtherFile 创建一个不透明文件，name 需要包含扩展名
func (d *Directory) CreateOtherFile(name string, metadata types.Metadata) (*File, error) {
	return d.createFile(name, nil, metadata)
}

func (d *Directory) createFile(name string, layout *events.Layout, metadata types.Metadata) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	codec := d.opts.Codec

	// 占用名称后再打开临时文件，同名的两个 File 不会截断彼此的 "<final>.write"
	if err := d.reserve(name); err != nil {
		return nil, err
	}
	out, err := disk.CreateAtomic(filepath.Join(d.path, name+codec.Suffix()))
	if err != nil {
		d.release(name)
		return nil, err
	}

	f := &File{
		dir:      d,
		name:     name,
		layout:   layout,
		metadata: metadata.Clone(),
		codec:    codec,
		out:      out,
		buf:      bufio.NewWriterSize(out, 256<<10),
		raw:      core.NewHasher(),
		packed:   core.NewHasher(),
	}
	f.enc, err = codec.NewWriter(io.MultiWriter(f.buf, f.packed))
	if err != nil {
		out.Abort()
		d.release(name)
		return nil, err
	}
	return f, nil
}

// Name 返回索引中的名称
func (f *File) Name() string { return f.name }

// Path 返回发布后的路径
func (f *File) Path() string { return f.out.Path() }

// Write 写入原始字节
// 类型化文件要求长度是记录步长的整数倍
func (f *File) Write(p []byte) (int, error) {
	if f.state != stateOpen {
		return 0, fmt.Errorf("%w: %s", ErrFileClosed, f.Path())
	}
	if f.layout != nil && len(p)%f.layout.Stride() != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of the %s stride %d",
			ErrLayoutMismatch, len(p), f.layout.Kind, f.layout.Stride())
	}
	f.raw.Write(p)
	return f.enc.Write(p)
}

// WriteString 写入文本，只用于 other file (例如保存的文件头)
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteArray 编码并写入一组记录，记录类型必须与文件布局一致
func (f *File) WriteArray(a events.Array) error {
	if f.layout == nil || !f.layout.Accepts(a.Layout()) {
		return fmt.Errorf("%w: cannot write %s records to %s", ErrLayoutMismatch, a.Layout().Kind, f.name)
	}
	if a.Len() == 0 {
		return nil
	}
	b, err := a.AppendBinary(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLayoutMismatch, err)
	}
	_, err = f.Write(b)
	return err
}

// ReadFrom 按固定大小的块复制 r 的全部内容，实现 io.ReaderFrom
// 只用于 other file：分块边界不保证对齐记录步长
func (f *File) ReadFrom(r io.Reader) (int64, error) {
	if f.layout != nil {
		return 0, fmt.Errorf("%w: chunked copy into typed file %s", ErrLayoutMismatch, f.name)
	}
	chunk := make([]byte, copyChunkSize)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if _, werr := f.Write(chunk[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close 结束编码、发布文件并登记到目录索引
// 第二次调用返回 ErrDoubleClose
func (f *File) Close() error {
	switch f.state {
	case stateSealed:
		return fmt.Errorf("%w: %s", ErrDoubleClose, f.Path())
	case stateAborted:
		return fmt.Errorf("%w: %s", ErrFileClosed, f.Path())
	}
	defer f.dir.release(f.name)

	// 1. 写出编码器尾部，并刷出缓冲
	if err := f.enc.Close(); err != nil {
		f.Abort()
		return err
	}
	if err := f.buf.Flush(); err != nil {
		f.Abort()
		return err
	}

	// 2. fsync + rename 发布
	if err := f.out.Commit(); err != nil {
		f.state = stateAborted
		return err
	}
	f.state = stateSealed

	// 3. 登记索引
	f.entry = Entry{
		Compressions: []Compression{{
			Hash:   f.packed.Sum(),
			Size:   f.packed.Size(),
			Suffix: f.codec.Suffix(),
			Codec:  f.codec.Name(),
		}},
		Hash:     f.raw.Sum(),
		Metadata: f.metadata,
		Name:     f.name,
		Size:     f.raw.Size(),
	}
	if f.layout != nil {
		f.entry.Properties = f.layout.Properties()
	}
	return f.dir.UpdateIndex(f.entry, f.layout == nil)
}

// Abort 丢弃未发布的内容，已发布的文件和索引保持不变
func (f *File) Abort() error {
	if f.state != stateOpen {
		return nil
	}
	f.state = stateAborted
	defer f.dir.release(f.name)
	f.enc.Close()
	return f.out.Abort()
}

// Entry 返回 Close 之后登记的索引条目
func (f *File) Entry() Entry { return f.entry }

// WriteFile 创建类型化文件，调用 fn 写入，然后关闭
// fn 返回错误或 panic 时文件被丢弃，不会出现在索引中
func (d *Directory) WriteFile(layout events.Layout, name string, metadata types.Metadata, fn func(*File) error) (Entry, error) {
	f, err := d.CreateFile(layout, name, metadata)
	if err != nil {
		return Entry{}, err
	}
	return f.run(fn)
}

// WriteOtherFile 是 WriteFile 的 other file 版本
func (d *Directory) WriteOtherFile(name string, metadata types.Metadata, fn func(*File) error) (Entry, error) {
	f, err := d.CreateOtherFile(name, metadata)
	if err != nil {
		return Entry{}, err
	}
	return f.run(fn)
}

func (f *File) run(fn func(*File) error) (Entry, error) {
	defer f.Abort()
	if err := fn(f); err != nil {
		return Entry{}, err
	}
	if err := f.Close(); err != nil {
		return Entry{}, err
	}
	return f.Entry(), nil
}
