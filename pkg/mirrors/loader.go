package mirrors

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Load 从镜像配置目录读取有序的镜像列表
// 目录下每个普通文件按文件名排序处理；每行一个镜像地址，空行和 # 开头的行忽略
// 目录不存在时返回空列表
func Load(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mirror dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		// 跟随符号链接，指向普通文件的链接同样是配置文件
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // 悬空链接
			}
			return nil, fmt.Errorf("failed to stat mirror file %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
	}
	sort.Strings(files)

	var mirrors []string
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read mirror file %s: %w", file, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mirror file %s: %w", file, err)
		}
		mirrors = append(mirrors, parsed...)
	}
	return mirrors, nil
}

// Parse 解析单个镜像文件的内容
func Parse(data []byte) ([]string, error) {
	var mirrors []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		mirrors = append(mirrors, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mirrors, nil
}
