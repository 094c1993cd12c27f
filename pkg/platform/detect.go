package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"pkgutils/pkg/types"

	"github.com/shirou/gopsutil/v4/host"
)

// Info 当前主机的平台信息
type Info struct {
	OS   string // runtime.GOOS
	Arch string // 规范化后的 CPU 架构，例如 x86_64

	// 以下仅 Linux 上由 gopsutil 填充，探测失败时为空
	Platform string // ubuntu, debian, alpine ...
	Family   string
	Version  string
}

// Target 组合成仓库使用的目标三元组 <arch>-unknown-<os>
func (i *Info) Target() types.Target {
	return types.Target(fmt.Sprintf("%s-unknown-%s", i.Arch, i.OS))
}

// Detect 探测平台
// 发行版探测失败不算错误，只有 ctx 被取消才返回错误
func Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}

	if runtime.GOOS == "linux" {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}
		info.Platform = strings.ToLower(strings.TrimSpace(platform))
		info.Family = strings.ToLower(strings.TrimSpace(family))
		info.Version = strings.TrimSpace(version)
	}

	return info, nil
}

// NormalizeArch 把 Go 的架构名换成工具链惯用的名字
func NormalizeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return goarch
	}
}
