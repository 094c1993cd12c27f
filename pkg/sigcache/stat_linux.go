//go:build linux

package sigcache

import (
	"os"
	"syscall"
)

// fileIdentity 取出用户无法伪造的元数据：设备、inode 与 ctime
// mtime 可以被 touch -d 改回去，ctime 不行
func fileIdentity(info os.FileInfo) (identity, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return identity{}, false
	}
	sec, nsec := st.Ctim.Unix()
	return identity{
		Device:     uint64(st.Dev),
		Inode:      uint64(st.Ino),
		ChangeTime: sec*1e9 + nsec,
	}, true
}
