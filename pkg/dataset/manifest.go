package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"undrgen/pkg/events"
	"undrgen/pkg/types"
)

// IndexFileName 是每个数据集目录下的索引文件名
// 以 "-" 开头保证它在字典序上排在所有数据文件之前
const IndexFileName = "-index.json"

// Version 是索引格式版本
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// CurrentVersion 是新建索引写入的版本
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Compression 描述文件的一种压缩编码
// 字段按 JSON key 的字典序声明，encoding/json 按声明顺序输出
type Compression struct {
	Hash   types.Hash `json:"hash"`
	Size   int64      `json:"size"`
	Suffix string     `json:"suffix"`
	Codec  string     `json:"type"`
}

// Entry 是索引中的一个文件条目
// Hash/Size 描述未压缩的内容，Compressions 描述磁盘上的编码
type Entry struct {
	Compressions []Compression      `json:"compressions"`
	Hash         types.Hash         `json:"hash"`
	Metadata     types.Metadata     `json:"metadata"`
	Name         string             `json:"name"`
	Properties   *events.Properties `json:"properties,omitempty"`
	Size         int64              `json:"size"`
}

// Manifest 是 "-index.json" 的内容
// 三个列表各自按名称排序，名称在三个列表之间不重复
type Manifest struct {
	Directories []string `json:"directories"`
	Files       []Entry  `json:"files"`
	OtherFiles  []Entry  `json:"other_files"`
	Version     Version  `json:"version"`
}

// NewManifest 返回空索引
func NewManifest() *Manifest {
	return &Manifest{
		Directories: []string{},
		Files:       []Entry{},
		OtherFiles:  []Entry{},
		Version:     CurrentVersion,
	}
}

// LoadManifest 读取并校验索引文件
// 重复名称返回 ErrDuplicateName；读入后三个列表都重新排序
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest 解析索引内容
// 数字以 json.Number 保留，重新序列化时不会丢失精度
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	m := NewManifest()
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("invalid index: %w", err)
	}
	m.normalize()
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.sort()
	return m, nil
}

// Marshal 按固定格式序列化：key 排序、4 空格缩进、结尾换行
// 相同的内容总是产生相同的字节
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	// Encode 自带结尾的 '\n'
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone 深拷贝列表和条目，结果不与 m 共享任何可变状态
func (m *Manifest) Clone() *Manifest {
	out := &Manifest{
		Directories: append([]string{}, m.Directories...),
		Files:       cloneEntries(m.Files),
		OtherFiles:  cloneEntries(m.OtherFiles),
		Version:     m.Version,
	}
	return out
}

// Lookup 按名称查找文件条目 (先 files 后 other_files)
func (m *Manifest) Lookup(name string) (Entry, bool) {
	for _, list := range [][]Entry{m.Files, m.OtherFiles} {
		if i, ok := searchEntries(list, name); ok {
			return list[i], true
		}
	}
	return Entry{}, false
}

// HasDirectory 判断子目录是否已登记
func (m *Manifest) HasDirectory(name string) bool {
	i := sort.SearchStrings(m.Directories, name)
	return i < len(m.Directories) && m.Directories[i] == name
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		e.Compressions = append([]Compression(nil), e.Compressions...)
		e.Properties = e.Properties.Clone()
		e.Metadata = e.Metadata.Clone()
		out[i] = e
	}
	return out
}

// normalize 把缺失的字段补成空值，保证输出里没有 null
func (m *Manifest) normalize() {
	if m.Directories == nil {
		m.Directories = []string{}
	}
	if m.Files == nil {
		m.Files = []Entry{}
	}
	if m.OtherFiles == nil {
		m.OtherFiles = []Entry{}
	}
	for _, list := range [][]Entry{m.Files, m.OtherFiles} {
		for i := range list {
			if list[i].Metadata == nil {
				list[i].Metadata = types.Metadata{}
			}
			if list[i].Compressions == nil {
				list[i].Compressions = []Compression{}
			}
		}
	}
}

func (m *Manifest) validate() error {
	names := make(map[string]struct{}, len(m.Directories)+len(m.Files)+len(m.OtherFiles))
	add := func(name string) error {
		if _, ok := names[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		names[name] = struct{}{}
		return nil
	}
	for _, d := range m.Directories {
		if err := add(d); err != nil {
			return err
		}
	}
	for _, list := range [][]Entry{m.Files, m.OtherFiles} {
		for _, e := range list {
			if err := add(e.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manifest) sort() {
	sort.Strings(m.Directories)
	sort.SliceStable(m.Files, func(i, j int) bool { return m.Files[i].Name < m.Files[j].Name })
	sort.SliceStable(m.OtherFiles, func(i, j int) bool { return m.OtherFiles[i].Name < m.OtherFiles[j].Name })
}

func searchEntries(list []Entry, name string) (int, bool) {
	i := sort.Search(len(list), func(i int) bool { return list[i].Name >= name })
	return i, i < len(list) && list[i].Name == name
}

// insertDirectory 按序插入，已存在时不变
func insertDirectory(list []string, name string) []string {
	i := sort.SearchStrings(list, name)
	if i < len(list) && list[i] == name {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = name
	return list
}

// upsertEntry 按序插入；同名条目被替换
func upsertEntry(list []Entry, e Entry) []Entry {
	i, found := searchEntries(list, e.Name)
	if found {
		list[i] = e
		return list
	}
	list = append(list, Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

func removeEntry(list []Entry, name string) []Entry {
	i, found := searchEntries(list, name)
	if !found {
		return list
	}
	return append(list[:i], list[i+1:]...)
}
