//go:build !linux

package sigcache

import "os"

// 其它平台拿不到可靠的 ctime，记忆永远不命中
func fileIdentity(info os.FileInfo) (identity, bool) {
	return identity{}, false
}
