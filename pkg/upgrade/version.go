package upgrade

import (
	"fmt"
	"strings"

	"pkgutils/pkg/types"

	"golang.org/x/mod/semver"
)

// normalizeVersion 补上 semver 包要求的 "v" 前缀
// "1" 和 "1.2" 作为 1.0.0 / 1.2.0 的简写被接受
func normalizeVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

// CompareVersions 返回 -1、0、1
// 任一侧无法解析 (包括空字符串) 时返回 InvalidData
func CompareVersions(a, b string) (int, error) {
	va, ok := normalizeVersion(a)
	if !ok {
		return 0, fmt.Errorf("version %q: %w", a, types.ErrInvalidData)
	}
	vb, ok := normalizeVersion(b)
	if !ok {
		return 0, fmt.Errorf("version %q: %w", b, types.ErrInvalidData)
	}
	return semver.Compare(va, vb), nil
}
