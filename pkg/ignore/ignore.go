package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是源目录树根部的忽略规则文件
const FileName = ".undrignore"

// defaultRules 强制生效，与用户规则合并编译
var defaultRules = []string{
	// --- 版本控制与自身配置 ---
	".git",
	FileName,

	// --- 常见垃圾文件 ---
	".DS_Store", // macOS
	"Thumbs.db", // Windows
	"desktop.ini",
}

// Matcher 判断源目录树中的一个条目是否应该被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 源目录树的根 (用于查找 .undrignore)
// extra: 额外的 gitignore 风格规则 (例如来自数据集描述文件)
func NewMatcher(rootPath string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	// 1. 检查用户是否有 .undrignore 文件
	ignoreFilePath := filepath.Join(rootPath, FileName)
	if _, errStat := os.Stat(ignoreFilePath); errStat != nil {
		// 仅编译默认规则 + 额外规则
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
	}

	// 2. 把文件内容和其余规则合并编译
	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, rules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于源目录树根的 "/" 分隔路径 (例如 "user01/rec.aedat")
// 返回: true 表示应该忽略 (Skip), false 表示应该保留 (Keep)
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
