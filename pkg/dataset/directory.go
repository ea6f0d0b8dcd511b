// Package dataset 把解码后的记录写成 UNDR 目录布局：
// 压缩并哈希的数据文件，加上每个目录一份的 "-index.json" 索引。
//
// 文件先写到 "<final>.write"，关闭时 rename 发布，然后登记到所属目录的索引。
// 索引可以直接同步保存，也可以交给 Debouncer 合并写入。
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"undrgen/pkg/compress"
	"undrgen/pkg/core"
	"undrgen/pkg/storage/disk"
)

var (
	// ErrDuplicateName 表示加载的索引里同一个名称出现了多次
	ErrDuplicateName = errors.New("duplicate file or directory name")
	// ErrDuplicateAdd 表示本次运行中同一个名称被添加了两次
	ErrDuplicateAdd   = errors.New("file or directory added twice")
	ErrDoubleClose    = errors.New("close called twice")
	ErrLayoutMismatch = errors.New("data does not match the file layout")
	ErrFileClosed     = errors.New("file is closed")
)

// Options 控制目录的保存策略和新文件的编码
type Options struct {
	// Debouncer 为 nil 时，每次索引变更都同步写盘
	Debouncer *Debouncer
	// Codec 为 nil 时使用 compress.Default()
	Codec compress.Codec
}

// Directory 是一个数据集目录及其索引
// 所有方法都可以被多个 goroutine 并发调用
type Directory struct {
	path      string
	indexPath string
	opts      Options
	debID     int

	// updateMu 保护 manifest、added 和 pending
	updateMu sync.Mutex
	manifest *Manifest
	added    map[string]struct{}
	pending  map[string]struct{} // 尚未关闭的 File 占用的名称

	// writeMu 串行化索引文件的写入
	// 持有 updateMu 时获取 writeMu，再释放 updateMu，快照按拍摄顺序落盘
	writeMu    sync.Mutex
	written    core.Fingerprint
	hasWritten bool
}

// writeIndexFile 原子写入索引文件
var writeIndexFile = disk.WriteFileAtomic

// OpenDirectory 打开 (必要时创建) 一个数据集目录
// 索引不存在时写入空索引；加载的索引中有重复名称时返回 ErrDuplicateName
func OpenDirectory(path string, opts Options) (*Directory, error) {
	if opts.Codec == nil {
		opts.Codec = compress.Default()
	}

	// 1. 目录
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", path, err)
	}

	// 2. 索引：不存在时先落盘一个空索引
	d := &Directory{
		path:      path,
		indexPath: filepath.Join(path, IndexFileName),
		opts:      opts,
		added:     make(map[string]struct{}),
		pending:   make(map[string]struct{}),
	}
	if _, err := os.Stat(d.indexPath); os.IsNotExist(err) {
		if err := d.write(NewManifest()); err != nil {
			return nil, fmt.Errorf("create index %s: %w", d.indexPath, err)
		}
	} else if err != nil {
		return nil, err
	}

	// 3. 加载 + 校验 + 排序
	m, err := LoadManifest(d.indexPath)
	if err != nil {
		return nil, err
	}
	d.manifest = m

	// 4. 注册到 debouncer
	if opts.Debouncer != nil {
		d.debID = opts.Debouncer.register(d)
	}
	return d, nil
}

// Path 返回目录在本地文件系统中的路径
func (d *Directory) Path() string { return d.path }

// Codec 返回新文件使用的压缩编码
func (d *Directory) Codec() compress.Codec { return d.opts.Codec }

// Manifest 返回当前索引的快照
func (d *Directory) Manifest() *Manifest {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()
	return d.manifest.Clone()
}

// CreateSubdirectory 在索引中登记子目录并打开它
// 子目录沿用本目录的 Options
func (d *Directory) CreateSubdirectory(name string) (*Directory, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	d.updateMu.Lock()
	if _, open := d.pending[name]; open {
		d.updateMu.Unlock()
		return nil, fmt.Errorf("%w: %q in %s", ErrDuplicateAdd, name, d.indexPath)
	}
	if _, found := d.manifest.Lookup(name); found {
		d.updateMu.Unlock()
		return nil, fmt.Errorf("%w: %q is a file in %s", ErrDuplicateName, name, d.indexPath)
	}
	if err := d.claim(name); err != nil {
		d.updateMu.Unlock()
		return nil, err
	}
	d.manifest.Directories = insertDirectory(d.manifest.Directories, name)
	if err := d.changedLocked(); err != nil {
		return nil, err
	}

	return OpenDirectory(filepath.Join(d.path, name), d.opts)
}

// UpdateIndex 登记一个已发布的文件
// other 为 true 时写入 other_files，否则写入 files；同名条目被替换
// 一个名称在一次运行中只能添加一次
func (d *Directory) UpdateIndex(entry Entry, other bool) error {
	if entry.Hash.IsZero() {
		return fmt.Errorf("index entry %q has no hash", entry.Name)
	}

	d.updateMu.Lock()
	if d.manifest.HasDirectory(entry.Name) {
		d.updateMu.Unlock()
		return fmt.Errorf("%w: %q is a directory in %s", ErrDuplicateName, entry.Name, d.indexPath)
	}
	if err := d.claim(entry.Name); err != nil {
		d.updateMu.Unlock()
		return err
	}

	// 同名文件换了类别 (files <-> other_files) 时，从另一个列表移除旧条目
	if other {
		d.manifest.Files = removeEntry(d.manifest.Files, entry.Name)
		d.manifest.OtherFiles = upsertEntry(d.manifest.OtherFiles, entry)
	} else {
		d.manifest.OtherFiles = removeEntry(d.manifest.OtherFiles, entry.Name)
		d.manifest.Files = upsertEntry(d.manifest.Files, entry)
	}
	return d.changedLocked()
}

// Save 立即把当前索引写盘
// 内容与上一次写入相同时跳过
func (d *Directory) Save() error {
	d.updateMu.Lock()
	return d.saveLocked()
}

// reserve 为一个新打开的 File 占用名称
// 名称已被本次运行添加，或者另一个 File 还没有关闭时返回 ErrDuplicateAdd
func (d *Directory) reserve(name string) error {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()
	_, open := d.pending[name]
	_, done := d.added[name]
	if open || done {
		return fmt.Errorf("%w: %q in %s", ErrDuplicateAdd, name, d.indexPath)
	}
	d.pending[name] = struct{}{}
	return nil
}

func (d *Directory) release(name string) {
	d.updateMu.Lock()
	delete(d.pending, name)
	d.updateMu.Unlock()
}

// claim 记录本次运行添加的名称，调用方持有 updateMu
func (d *Directory) claim(name string) error {
	if _, ok := d.added[name]; ok {
		return fmt.Errorf("%w: %q in %s", ErrDuplicateAdd, name, d.indexPath)
	}
	d.added[name] = struct{}{}
	return nil
}

// changedLocked 在索引变更后调用
// 调用方持有 updateMu，返回前释放
func (d *Directory) changedLocked() error {
	if d.opts.Debouncer != nil && d.opts.Debouncer.set(d.debID) {
		d.updateMu.Unlock()
		return nil
	}
	// 没有 debouncer (或者它已经关闭)：同步保存
	return d.saveLocked()
}

// saveLocked 在 updateMu 下拍快照，换到 writeMu 后在锁外序列化写盘
// 调用方持有 updateMu，返回前释放
func (d *Directory) saveLocked() error {
	snapshot := d.manifest.Clone()
	d.writeMu.Lock()
	d.updateMu.Unlock()
	defer d.writeMu.Unlock()
	return d.write(snapshot)
}

// write 序列化并原子写入索引，调用方持有 writeMu (或者处于构造阶段)
func (d *Directory) write(m *Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	fp := core.FingerprintOf(data)
	if d.hasWritten && fp == d.written {
		return nil
	}
	if err := writeIndexFile(d.indexPath, data); err != nil {
		return fmt.Errorf("write index %s: %w", d.indexPath, err)
	}
	d.written, d.hasWritten = fp, true
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || name == IndexFileName || filepath.Base(name) != name {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}
