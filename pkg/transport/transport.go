package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrUnsupportedScheme = errors.New("unsupported mirror scheme")

// Transport 把一个远程资源完整地取到本地路径
// 实现可以是 HTTPS、S3 或本地目录镜像
type Transport interface {
	// Download 成功时 localPath 是完整的文件；失败时不会留下半截文件
	// 远端不存在的资源应当包装 types.ErrNotFound
	Download(ctx context.Context, remotePath, localPath string) error
}

// Mux 按 URL scheme 把请求分发给具体的 Transport
type Mux struct {
	routes map[string]Transport
	out    io.Writer
	logger *logrus.Logger
}

// NewMux out 用于打印 "* Requesting" 等进度提示，可为 nil
func NewMux(out io.Writer, logger *logrus.Logger) *Mux {
	return &Mux{
		routes: make(map[string]Transport),
		out:    out,
		logger: logger,
	}
}

// Handle 注册 scheme 的处理者，重复注册会覆盖
func (m *Mux) Handle(scheme string, t Transport) {
	m.routes[strings.ToLower(scheme)] = t
}

func (m *Mux) Download(ctx context.Context, remotePath, localPath string) error {
	scheme := SchemeOf(remotePath)
	t, ok := m.routes[scheme]
	if !ok {
		return fmt.Errorf("%w: %q (%s)", ErrUnsupportedScheme, scheme, remotePath)
	}

	if m.out != nil {
		fmt.Fprintf(m.out, "* Requesting %s\n", remotePath)
	}
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"scheme": scheme,
			"remote": remotePath,
			"local":  localPath,
		}).Debug("download")
	}

	return t.Download(ctx, remotePath, localPath)
}

// SchemeOf 返回地址的 scheme；裸路径视为 "file"
func SchemeOf(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	// Windows 盘符 (C:\...) 被 url 解析成单字母 scheme
	if len(u.Scheme) == 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// Save 把 r 的内容原子写入 localPath，过程中渲染进度条
// 1. 先写同目录的临时文件
// 2. Sync 后 Rename 到最终位置，保证要么不存在要么完整
func Save(localPath string, r io.Reader, size int64, out io.Writer) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	// Rename 成功后这里的删除无害
	defer os.Remove(tempFile.Name())

	bar := NewProgress(out, size)
	bar.Render()
	_, err = io.Copy(io.MultiWriter(tempFile, bar), r)
	bar.Finish()
	if err != nil {
		tempFile.Close()
		return err
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempFile.Name(), localPath)
}
