package repo

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"pkgutils/pkg/transport"
	"pkgutils/pkg/transport/disk"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

const testTarget = "x86_64-unknown-linux"

// spyTransport 包装真实的磁盘镜像，按顺序记录每次请求的地址
type spyTransport struct {
	mu       sync.Mutex
	inner    transport.Transport
	requests []string
}

func newSpy() *spyTransport {
	return &spyTransport{inner: disk.NewAdapter(nil)}
}

func (s *spyTransport) Download(ctx context.Context, remotePath, localPath string) error {
	s.mu.Lock()
	s.requests = append(s.requests, remotePath)
	s.mu.Unlock()
	return s.inner.Download(ctx, remotePath, localPath)
}

func (s *spyTransport) count(remotePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == remotePath {
			n++
		}
	}
	return n
}

// writeTree 按 map 在 root 下创建文件
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// mustPublish 在工作目录打包 name，并把 .tar/.sig 放进镜像的 <target>/ 下
func mustPublish(t *testing.T, r *Repo, workDir, mirror, name string, files map[string]string) {
	t.Helper()
	src := filepath.Join(workDir, name)
	writeTree(t, src, files)

	tarFile, err := r.Create(context.Background(), src)
	require.NoError(t, err)

	dest := filepath.Join(mirror, testTarget)
	require.NoError(t, os.MkdirAll(dest, 0755))
	for _, f := range []string{tarFile, src + ".sig"} {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dest, filepath.Base(f)), data, 0644))
	}
}
