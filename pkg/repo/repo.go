package repo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pkgutils/pkg/archive"
	"pkgutils/pkg/digest"
	"pkgutils/pkg/logging"
	"pkgutils/pkg/transport"
	"pkgutils/pkg/types"

	"github.com/sirupsen/logrus"
)

// DefaultCacheRoot 本地缓存根目录
const DefaultCacheRoot = "/tmp/pkg"

// Config Repo 的全部静态输入
// Mirrors 已经由调用方加载好，Repo 自己从不读取镜像配置目录
type Config struct {
	CacheRoot string
	Mirrors   []string
	Target    types.Target
}

// Repo 是包仓库客户端：镜像同步、签名校验、打包与解包
type Repo struct {
	local     string
	mirrors   []string
	target    types.Target
	transport transport.Transport
	digester  digest.Digester
	notice    io.Writer // "* Already downloaded" 之类的提示
	logger    *logrus.Logger
}

// Option 可选依赖
type Option func(*Repo)

func WithDigester(d digest.Digester) Option {
	return func(r *Repo) { r.digester = d }
}

func WithNotice(w io.Writer) Option {
	return func(r *Repo) { r.notice = w }
}

func WithLogger(l *logrus.Logger) Option {
	return func(r *Repo) { r.logger = l }
}

// New 组装 Repo
func New(cfg Config, t transport.Transport, opts ...Option) *Repo {
	local := cfg.CacheRoot
	if local == "" {
		local = DefaultCacheRoot
	}

	r := &Repo{
		local:     local,
		mirrors:   append([]string(nil), cfg.Mirrors...),
		target:    cfg.Target,
		transport: t,
		digester:  digest.NewFileDigester(),
		notice:    os.Stderr,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repo) CacheRoot() string { return r.local }

func (r *Repo) Target() types.Target { return r.target }

func (r *Repo) Mirrors() []string { return append([]string(nil), r.mirrors...) }

func (r *Repo) localPath(file string) string {
	return filepath.Join(r.local, filepath.FromSlash(file))
}

// AddMirror 追加一个最低优先级的镜像
// 空地址或已在列表中的地址被忽略，返回是否真的追加了
func (r *Repo) AddMirror(mirror string) bool {
	mirror = strings.TrimSpace(mirror)
	if mirror == "" || slices.Contains(r.mirrors, mirror) {
		return false
	}
	r.mirrors = append(r.mirrors, mirror)
	return true
}

// RemotePath 拼出 <mirror>/<target>/<file>
func (r *Repo) RemotePath(mirror, file string) string {
	return strings.TrimRight(mirror, "/") + "/" + r.target.String() + "/" + file
}

// Sync 把远程文件同步到本地缓存，返回本地路径
// 按镜像顺序逐个尝试，第一个成功的即返回，后面的镜像不再访问
func (r *Repo) Sync(ctx context.Context, file string) (string, error) {
	localPath := r.localPath(file)

	// 1. 准备目录
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", err
	}

	// 2. 逐个镜像尝试，单个镜像的失败只记录不返回
	for _, mirror := range r.mirrors {
		remotePath := r.RemotePath(mirror, file)
		err := r.transport.Download(ctx, remotePath, localPath)
		if err == nil {
			return localPath, nil
		}

		r.logger.WithFields(logging.MirrorFields(mirror, remotePath, localPath)).
			WithError(err).
			Warn("mirror failed")

		// 进程被取消时没必要继续换镜像
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%s: no remote paths: %w", file, types.ErrNotFound)
}

// Signature 计算本地文件的签名
func (r *Repo) Signature(ctx context.Context, file string) (types.Signature, error) {
	return r.digester.FileSignature(ctx, file)
}

// Fetch 取得一个经过签名校验的包
// 1. 同步 <pkg>.sig 作为期望值
// 2. 本地缓存的 <pkg>.tar 签名一致时直接使用，不访问网络
// 3. 否则同步 <pkg>.tar 并重新校验，不一致则报 InvalidData
func (r *Repo) Fetch(ctx context.Context, pkg string) (*archive.Package, error) {
	log := r.logger.WithFields(logging.PackageFields("fetch", pkg))

	sigFile, err := r.Sync(ctx, pkg+".sig")
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(sigFile)
	if err != nil {
		return nil, err
	}
	expected := types.ParseSignature(raw)
	if !expected.IsValid() {
		return nil, fmt.Errorf("%s.sig malformed: %w", pkg, types.ErrInvalidData)
	}

	tarFile := r.localPath(pkg + ".tar")
	if sig, err := r.Signature(ctx, tarFile); err == nil && sig == expected {
		fmt.Fprintf(r.notice, "* Already downloaded %s\n", pkg)
		log.Debug("cache hit")
		return archive.Open(tarFile, expected)
	}

	tarFile, err = r.Sync(ctx, pkg+".tar")
	if err != nil {
		return nil, err
	}

	sig, err := r.Signature(ctx, tarFile)
	if err != nil {
		return nil, err
	}
	if sig != expected {
		log.WithFields(logrus.Fields{"expected": expected, "actual": sig}).Warn("signature mismatch")
		return nil, fmt.Errorf("%s not valid: %w", pkg, types.ErrInvalidData)
	}

	return archive.Open(tarFile, expected)
}

// Create 把目录 pkg 打包为 <pkg>.tar 并写出 <pkg>.sig
// 输出文件与目录同级，返回归档路径
func (r *Repo) Create(ctx context.Context, pkg string) (string, error) {
	dir := filepath.Clean(pkg)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s not found: %w", pkg, types.ErrNotFound)
	}

	tarFile := dir + ".tar"
	sigFile := dir + ".sig"

	if err := writeArchive(dir, tarFile); err != nil {
		return "", err
	}

	sig, err := r.Signature(ctx, tarFile)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(sigFile, []byte(sig.String()+"\n"), 0644); err != nil {
		return "", err
	}

	r.logger.WithFields(logging.PackageFields("create", pkg)).
		WithField("signature", sig).
		Info("package created")

	return tarFile, nil
}

func writeArchive(dir, tarFile string) error {
	f, err := os.Create(tarFile)
	if err != nil {
		return err
	}
	if _, err := archive.Build(dir, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to build %s: %w", tarFile, err)
	}
	return f.Close()
}

// Extract 把包解到缓存目录 <local>/<pkg>/ 下
func (r *Repo) Extract(ctx context.Context, pkg string) (string, error) {
	dir := r.localPath(pkg)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	p, err := r.Fetch(ctx, pkg)
	if err != nil {
		return "", err
	}
	if _, err := p.Install(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Clean 删除 Extract 产生的目录
// 目录不存在时报错，不做 "已经干净" 的容忍
func (r *Repo) Clean(pkg string) (string, error) {
	dir := r.localPath(pkg)
	if _, err := os.Lstat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", dir, types.ErrNotFound)
		}
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// OpenLocal 打开本地的 .tar 文件用于直装，不做签名校验
func (r *Repo) OpenLocal(ctx context.Context, path string) (*archive.Package, error) {
	sig, err := r.Signature(ctx, path)
	if err != nil {
		return nil, err
	}
	return archive.Open(path, sig)
}
