// Package convert 是通用的数据集转换驱动：
// 一个 YAML 描述文件说明源目录树的格式、改名规则和元数据，
// 每个源文件被解码为 UNDR 格式的 DVS / APS / IMU 文件，其余文件原样复制。
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"undrgen/pkg/aer"
	"undrgen/pkg/ignore"
	"undrgen/pkg/naming"
	"undrgen/pkg/tree"
	"undrgen/pkg/types"

	"gopkg.in/yaml.v3"
)

var ErrInvalidDescription = errors.New("invalid dataset description")

// Description 是数据集描述文件 (YAML) 的内容
type Description struct {
	Name   string `yaml:"name" json:"name"`
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`

	// Sensor 为空时按格式使用默认尺寸
	Sensor Sensor `yaml:"sensor" json:"sensor"`

	// Formats: 源文件扩展名 (含 ".") -> 格式
	Formats map[string]aer.Format `yaml:"formats" json:"formats"`
	// DefaultFormat 用于没有出现在 Formats 中的扩展名，默认 other
	DefaultFormat aer.Format `yaml:"default_format" json:"default_format"`
	// Timestamps 是 DVS 时间戳乱序时的默认策略
	Timestamps aer.TimestampPolicy `yaml:"timestamps" json:"timestamps"`

	Rules  []RuleSpec `yaml:"rules" json:"rules"`
	Ignore []string   `yaml:"ignore" json:"ignore"`

	Metadata types.Metadata `yaml:"metadata" json:"metadata"`
	Naming   Naming         `yaml:"naming" json:"naming"`

	// Files: 相对源路径 -> 单个文件的覆盖项
	Files map[string]FileOverride `yaml:"files" json:"files,omitempty"`
}

type Sensor struct {
	Width  uint16 `yaml:"width" json:"width"`
	Height uint16 `yaml:"height" json:"height"`
}

// RuleSpec 对应 tree.Rule 的一种
//
//	- {kind: rename, path: a/b.aedat, to: c.aedat}
//	- {kind: rename_extension, from: .dat, to: .aedat}
//	- {kind: skip_name, name: calibration}
type RuleSpec struct {
	Kind string `yaml:"kind" json:"kind"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	From string `yaml:"from,omitempty" json:"from,omitempty"`
	To   string `yaml:"to,omitempty" json:"to,omitempty"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Naming 控制目标文件名的生成
type Naming struct {
	// StemAndDate 为 true 时从文件名中提取日期写入 metadata.date，
	// 剩余部分转为 snake_case
	StemAndDate  bool     `yaml:"stem_and_date" json:"stem_and_date"`
	TrimPrefixes []string `yaml:"trim_prefixes" json:"trim_prefixes,omitempty"`
	TrimSuffixes []string `yaml:"trim_suffixes" json:"trim_suffixes,omitempty"`
}

// FileOverride 覆盖单个源文件的设置，空字段表示沿用全局设置
type FileOverride struct {
	Name       string              `yaml:"name" json:"name,omitempty"`
	Format     aer.Format          `yaml:"format" json:"format,omitempty"`
	Timestamps aer.TimestampPolicy `yaml:"timestamps" json:"timestamps,omitempty"`
	Metadata   types.Metadata      `yaml:"metadata" json:"metadata,omitempty"`
}

// LoadDescription 读取描述文件
// 相对的 source/target 以描述文件所在目录为基准，结果总是绝对路径
func LoadDescription(p string) (*Description, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	d, err := ParseDescription(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	base := filepath.Dir(p)
	for _, field := range []*string{&d.Source, &d.Target} {
		if !filepath.IsAbs(*field) {
			*field = filepath.Join(base, *field)
		}
		if *field, err = filepath.Abs(*field); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ParseDescription 解析并校验描述，未知字段视为错误
func ParseDescription(data []byte) (*Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := d.normalize(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Description) normalize() error {
	if d.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidDescription)
	}
	if d.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidDescription)
	}
	if (d.Sensor.Width == 0) != (d.Sensor.Height == 0) {
		return fmt.Errorf("%w: sensor needs both width and height", ErrInvalidDescription)
	}

	if d.DefaultFormat == "" {
		d.DefaultFormat = aer.FormatOther
	}
	if _, err := aer.ParseFormat(string(d.DefaultFormat)); err != nil {
		return fmt.Errorf("%w: default_format: %v", ErrInvalidDescription, err)
	}

	formats := make(map[string]aer.Format, len(d.Formats))
	for ext, f := range d.Formats {
		if _, err := aer.ParseFormat(string(f)); err != nil {
			return fmt.Errorf("%w: formats[%s]: %v", ErrInvalidDescription, ext, err)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		formats[strings.ToLower(ext)] = f
	}
	d.Formats = formats

	policy, err := aer.ParseTimestampPolicy(string(d.Timestamps))
	if err != nil {
		return fmt.Errorf("%w: timestamps: %v", ErrInvalidDescription, err)
	}
	d.Timestamps = policy

	if d.Metadata == nil {
		d.Metadata = types.Metadata{}
	}

	files := make(map[string]FileOverride, len(d.Files))
	for rel, o := range d.Files {
		if o.Format != "" {
			if _, err := aer.ParseFormat(string(o.Format)); err != nil {
				return fmt.Errorf("%w: files[%s]: %v", ErrInvalidDescription, rel, err)
			}
		}
		if o.Timestamps != "" {
			if _, err := aer.ParseTimestampPolicy(string(o.Timestamps)); err != nil {
				return fmt.Errorf("%w: files[%s]: %v", ErrInvalidDescription, rel, err)
			}
		}
		if strings.ContainsAny(o.Name, `/\`) {
			return fmt.Errorf("%w: files[%s]: name %q contains a separator", ErrInvalidDescription, rel, o.Name)
		}
		files[path.Clean(filepath.ToSlash(rel))] = o
	}
	d.Files = files

	for i, r := range d.Rules {
		if _, err := r.rule(); err != nil {
			return fmt.Errorf("%w: rules[%d]: %v", ErrInvalidDescription, i, err)
		}
	}
	return nil
}

func (r RuleSpec) rule() (tree.Rule, error) {
	switch r.Kind {
	case "rename":
		if r.Path == "" || r.To == "" {
			return tree.Rule{}, fmt.Errorf("rename needs path and to")
		}
		return tree.Rename(r.Path, r.To), nil
	case "rename_extension":
		if !strings.HasPrefix(r.From, ".") || !strings.HasPrefix(r.To, ".") {
			return tree.Rule{}, fmt.Errorf("rename_extension needs from and to starting with '.'")
		}
		return tree.RenameExtension(r.From, r.To), nil
	case "skip_name":
		if r.Name == "" {
			return tree.Rule{}, fmt.Errorf("skip_name needs name")
		}
		return tree.SkipName(r.Name), nil
	default:
		return tree.Rule{}, fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

// TreeRules 按描述文件中的顺序生成规则
// 忽略规则 (默认规则 + .undrignore + ignore 列表) 排在最前面
func (d *Description) TreeRules() ([]tree.Rule, error) {
	matcher, err := ignore.NewMatcher(d.Source, d.Ignore...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	rules := []tree.Rule{tree.SkipIgnored(matcher)}
	for _, r := range d.Rules {
		rule, err := r.rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// FormatOf 返回相对源路径 rel 的格式
func (d *Description) FormatOf(rel string) aer.Format {
	if o, ok := d.Files[rel]; ok && o.Format != "" {
		return o.Format
	}
	if f, ok := d.Formats[strings.ToLower(path.Ext(rel))]; ok {
		return f
	}
	return d.DefaultFormat
}

// PolicyOf 返回相对源路径 rel 的时间戳策略
func (d *Description) PolicyOf(rel string) aer.TimestampPolicy {
	if o, ok := d.Files[rel]; ok && o.Timestamps != "" {
		return o.Timestamps
	}
	return d.Timestamps
}

// SensorOf 返回格式对应的传感器尺寸
// 描述文件中的 sensor 优先，否则使用该格式的典型传感器
func (d *Description) SensorOf(f aer.Format) Sensor {
	if d.Sensor.Width != 0 {
		return d.Sensor
	}
	switch f {
	case aer.FormatAedat1:
		return Sensor{Width: 128, Height: 128} // DVS128
	case aer.FormatNMNIST:
		return Sensor{Width: 34, Height: 34} // ATIS 裁剪后的尺寸
	default:
		return Sensor{Width: uint16(aer.DAVIS240.Width), Height: uint16(aer.DAVIS240.Height)}
	}
}

// Resolve 计算文件的目标名称 (不含类型扩展名) 和元数据
// name 是规则映射之后的名称 (含源扩展名)；decoded 为 false 时保留扩展名
func (d *Description) Resolve(rel, name string, decoded bool) (string, types.Metadata, error) {
	md := d.Metadata.Clone()

	stem := name
	if decoded {
		stem = strings.TrimSuffix(name, path.Ext(name))
	}

	if d.Naming.StemAndDate && decoded {
		n, date, err := naming.StemAndDate(stem, d.Naming.TrimPrefixes, d.Naming.TrimSuffixes)
		if err != nil {
			return "", nil, err
		}
		if n != "" {
			stem = n
		}
		if date != "" {
			md["date"] = date
		}
	}

	if o, ok := d.Files[rel]; ok {
		if o.Name != "" {
			stem = o.Name
		}
		for k, v := range o.Metadata {
			md[k] = v
		}
	}
	return stem, md, nil
}
