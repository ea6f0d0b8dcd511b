package tree

import (
	"fmt"
	"path"
	"strings"

	"undrgen/pkg/ignore"
)

// RuleKind 是规则的种类
type RuleKind uint8

const (
	// KindRename 把相对路径完全相等的条目改名
	KindRename RuleKind = iota + 1
	// KindRenameExtension 替换匹配扩展名的条目的扩展名
	KindRenameExtension
	// KindSkipName 跳过名称完全相等的条目 (目录则跳过整棵子树)
	KindSkipName
	// KindSkipIgnored 跳过匹配 gitignore 风格规则的条目
	KindSkipIgnored
)

func (k RuleKind) String() string {
	switch k {
	case KindRename:
		return "rename"
	case KindRenameExtension:
		return "rename-extension"
	case KindSkipName:
		return "skip-name"
	case KindSkipIgnored:
		return "skip-ignored"
	default:
		return fmt.Sprintf("rule(%d)", uint8(k))
	}
}

// Rule 是一个封闭的规则联合体，Kind 决定哪些字段有效
type Rule struct {
	Kind RuleKind

	// KindRename: Path 是 "/" 分隔的相对源路径，NewName 是新名称
	Path    string
	NewName string

	// KindRenameExtension: 都包含开头的 "."，例如 ".aedat" -> ".aedat2"
	From string
	To   string

	// KindSkipName
	Name string

	// KindSkipIgnored
	Ignore *ignore.Matcher
}

func Rename(relativePath, newName string) Rule {
	return Rule{Kind: KindRename, Path: path.Clean(relativePath), NewName: newName}
}

func RenameExtension(from, to string) Rule {
	return Rule{Kind: KindRenameExtension, From: from, To: to}
}

func SkipName(name string) Rule {
	return Rule{Kind: KindSkipName, Name: name}
}

func SkipIgnored(m *ignore.Matcher) Rule {
	return Rule{Kind: KindSkipIgnored, Ignore: m}
}

// Match 判断规则是否作用于 rel ("/" 分隔的相对源路径)
func (r Rule) Match(rel string) bool {
	switch r.Kind {
	case KindRename:
		return rel == r.Path
	case KindRenameExtension:
		return extension(path.Base(rel)) == r.From
	case KindSkipName:
		return path.Base(rel) == r.Name
	case KindSkipIgnored:
		return r.Ignore.Matches(rel)
	default:
		return false
	}
}

// Skip 报告匹配时是否排除条目
func (r Rule) Skip() bool {
	return r.Kind == KindSkipName || r.Kind == KindSkipIgnored
}

// Apply 计算匹配后的新名称
func (r Rule) Apply(name string) string {
	switch r.Kind {
	case KindRename:
		return r.NewName
	case KindRenameExtension:
		return strings.TrimSuffix(name, extension(name)) + r.To
	default:
		return name
	}
}

// Evaluate 按顺序对一个条目应用规则
//
// 第一个匹配的跳过规则排除条目；改名规则总是针对原始相对路径判断，
// 互不串联，每种改名规则只有第一个匹配生效。
func Evaluate(rules []Rule, rel, name string) (target string, skip bool) {
	target = name
	var applied [KindSkipIgnored + 1]bool
	for _, r := range rules {
		if !r.Match(rel) {
			continue
		}
		if r.Skip() {
			return "", true
		}
		if applied[r.Kind] {
			continue
		}
		applied[r.Kind] = true
		target = r.Apply(target)
	}
	return target, false
}

// extension 返回最后一个 "." 开始的后缀；以 "." 开头且没有其他 "." 的名称没有扩展名
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i:]
}
