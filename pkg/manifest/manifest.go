package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"pkgutils/pkg/types"

	"github.com/pelletier/go-toml/v2"
)

// RemoteFile 每个镜像在 <target>/ 下发布的包清单
const RemoteFile = "repo.toml"

// PackageMeta 已安装包的描述文件 (例如 /pkg/foo.toml)
type PackageMeta struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Target  string `toml:"target,omitempty"`
}

// PackageMetaList 包名 -> 版本
type PackageMetaList struct {
	Packages map[string]string `toml:"packages"`
}

func NewPackageMetaList() *PackageMetaList {
	return &PackageMetaList{Packages: make(map[string]string)}
}

// ParseMeta 解析单个描述文件
func ParseMeta(data []byte) (*PackageMeta, error) {
	var meta PackageMeta
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("TOML error: %w: %v", types.ErrInvalidData, err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("descriptor without name: %w", types.ErrInvalidData)
	}
	return &meta, nil
}

// ParseList 解析 repo.toml
func ParseList(data []byte) (*PackageMetaList, error) {
	list := NewPackageMetaList()
	if err := toml.Unmarshal(data, list); err != nil {
		return nil, fmt.Errorf("TOML error: %w: %v", types.ErrInvalidData, err)
	}
	if list.Packages == nil {
		list.Packages = make(map[string]string)
	}
	return list, nil
}

// Marshal 序列化描述文件
func (m *PackageMeta) Marshal() ([]byte, error) {
	return toml.Marshal(m)
}

// Marshal 序列化清单
func (l *PackageMetaList) Marshal() ([]byte, error) {
	return toml.Marshal(l)
}

// Names 按字典序返回包名
func (l *PackageMetaList) Names() []string {
	names := make([]string, 0, len(l.Packages))
	for name := range l.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadInstalled 扫描已安装描述目录，汇总成清单
// 1. 目录不存在视为没有安装任何包
// 2. 解析失败的描述文件被跳过，交给 skip 回调记录
// 3. 读文件失败直接返回错误
func ReadInstalled(dir string, skip func(path string, err error)) (*PackageMetaList, error) {
	list := NewPackageMetaList()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return list, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		meta, err := ParseMeta(data)
		if err != nil {
			if skip != nil {
				skip(path, err)
			}
			continue
		}
		list.Packages[meta.Name] = meta.Version
	}

	return list, nil
}
