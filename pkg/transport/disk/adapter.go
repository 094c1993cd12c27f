package disk

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"pkgutils/pkg/transport"
	"pkgutils/pkg/types"
)

// Adapter 实现 transport.Transport，服务本地或挂载的镜像目录
// 地址可以是 file:///srv/mirror/... 也可以是裸路径
type Adapter struct {
	out io.Writer
}

func NewAdapter(out io.Writer) *Adapter {
	return &Adapter{out: out}
}

// SourcePath 把镜像地址还原为本地文件路径
func SourcePath(remote string) string {
	if u, err := url.Parse(remote); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return remote
}

func (a *Adapter) Download(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src := SourcePath(remotePath)
	f, err := os.Open(src)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s not found: %w", remotePath, types.ErrNotFound)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", remotePath, types.ErrNotFound)
	}

	return transport.Save(localPath, f, info.Size(), a.out)
}
