package https

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"pkgutils/pkg/transport"
	"pkgutils/pkg/types"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

const DefaultTimeout = 5 * time.Second

// Config 用于初始化 Adapter
type Config struct {
	// Timeout 同时约束建连、TLS 握手、等待响应头，以及读 body 时的最长静默
	Timeout   time.Duration
	UserAgent string
}

// Adapter 实现 transport.Transport，通过 HTTP(S) GET 拉取镜像文件
type Adapter struct {
	client  *resty.Client
	timeout time.Duration
	out     io.Writer
}

// NewAdapter out 用于进度条和 "* Failure" 提示，可为 nil
func NewAdapter(cfg Config, out io.Writer) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// 1. 借用 retryablehttp 的连接池 Transport，但不做任何重试
	// 失败的镜像交给上层按顺序换下一个
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	if t, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		t.TLSHandshakeTimeout = timeout
		t.ResponseHeaderTimeout = timeout
	}

	// 2. resty 负责请求构造；不设整体超时，大文件下载只受静默超时约束
	restyClient := resty.New()
	restyClient.SetTransport(retryClient.HTTPClient.Transport)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Adapter{
		client:  restyClient,
		timeout: timeout,
		out:     out,
	}
}

func (a *Adapter) Download(ctx context.Context, remotePath, localPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := a.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(remotePath)
	if err != nil {
		return fmt.Errorf("request %s: %w", remotePath, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		if a.out != nil {
			fmt.Fprintf(a.out, "* Failure %s\n", resp.Status())
		}
		return fmt.Errorf("%s not found: %w", remotePath, types.ErrNotFound)
	}

	size := resp.RawResponse.ContentLength
	if size < 0 {
		size = 0
	}

	r := newStallReader(body, a.timeout, cancel)
	defer r.stop()

	if err := transport.Save(localPath, r, size, a.out); err != nil {
		if r.stalled() {
			return fmt.Errorf("read %s: no data for %s", remotePath, a.timeout)
		}
		return fmt.Errorf("read %s: %w", remotePath, err)
	}
	return nil
}

// stallReader 在超过 timeout 没有读到任何字节时取消请求
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newStallReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{r: r, timeout: timeout}
	s.timer = time.AfterFunc(timeout, func() {
		s.fired.Store(true)
		cancel()
	})
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() { s.timer.Stop() }

func (s *stallReader) stalled() bool { return s.fired.Load() }
