package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 包目录下的忽略规则文件
const FileName = ".pkgignore"

// Matcher 决定打包时哪些路径不进归档
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// packageDir: 待打包的目录（用于查找 .pkgignore 文件）
// 没有 .pkgignore 时不排除任何路径，归档即目录的全部内容
func NewMatcher(packageDir string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(packageDir, FileName)
	if _, err := os.Stat(ignoreFilePath); err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, err
	}

	// 启用 .pkgignore 时附带的默认规则
	defaultRules := []string{
		FileName, // 规则文件本身不属于包内容

		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}

	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定的路径是否应被排除
// path: 相对于包目录的路径，使用 "/" 分隔 (例如 "bin/tool")
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
