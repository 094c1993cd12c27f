package repo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkgutils/pkg/digest"
	"pkgutils/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repo    *Repo
	spy     *spyTransport
	cache   string
	work    string
	mirrorA string
	mirrorB string
	notice  *bytes.Buffer
}

// setupRepo 两个磁盘镜像 A、B，按 A -> B 的优先级配置
func setupRepo(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		spy:     newSpy(),
		cache:   filepath.Join(root, "cache"),
		work:    filepath.Join(root, "work"),
		mirrorA: filepath.Join(root, "mirror-a"),
		mirrorB: filepath.Join(root, "mirror-b"),
		notice:  &bytes.Buffer{},
	}
	env.repo = New(Config{
		CacheRoot: env.cache,
		Mirrors:   []string{env.mirrorA, env.mirrorB},
		Target:    testTarget,
	}, env.spy, WithNotice(env.notice))
	return env
}

func TestRepo_RemotePath(t *testing.T) {
	r := New(Config{Target: "x86_64-unknown-redox"}, nil)
	assert.Equal(t, "https://static.example.org/pkg/x86_64-unknown-redox/foo.tar",
		r.RemotePath("https://static.example.org/pkg", "foo.tar"))
	assert.Equal(t, "https://static.example.org/pkg/x86_64-unknown-redox/repo.toml",
		r.RemotePath("https://static.example.org/pkg/", "repo.toml"))
	assert.Equal(t, DefaultCacheRoot, r.CacheRoot())
}

func TestSync_FallbackOrder(t *testing.T) {
	env := setupRepo(t)
	// 只有 B 有这个文件
	writeTree(t, filepath.Join(env.mirrorB, testTarget), map[string]string{"repo.toml": "from B"})

	local, err := env.repo.Sync(context.Background(), "repo.toml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cache, "repo.toml"), local)

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "from B", string(got))

	// A 必须先于 B 被尝试
	require.Len(t, env.spy.requests, 2)
	assert.Equal(t, env.repo.RemotePath(env.mirrorA, "repo.toml"), env.spy.requests[0])
	assert.Equal(t, env.repo.RemotePath(env.mirrorB, "repo.toml"), env.spy.requests[1])
}

func TestSync_FirstSuccessWins(t *testing.T) {
	env := setupRepo(t)
	writeTree(t, filepath.Join(env.mirrorA, testTarget), map[string]string{"repo.toml": "from A"})
	writeTree(t, filepath.Join(env.mirrorB, testTarget), map[string]string{"repo.toml": "from B"})

	local, err := env.repo.Sync(context.Background(), "repo.toml")
	require.NoError(t, err)

	got, _ := os.ReadFile(local)
	assert.Equal(t, "from A", string(got))
	assert.Equal(t, 0, env.spy.count(env.repo.RemotePath(env.mirrorB, "repo.toml")), "B 不应被访问")
}

func TestSync_NoRemotePaths(t *testing.T) {
	env := setupRepo(t)

	_, err := env.repo.Sync(context.Background(), "foo.sig")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Contains(t, err.Error(), "no remote paths")

	// 镜像列表为空也是同样的结果
	empty := New(Config{CacheRoot: t.TempDir(), Target: testTarget}, newSpy())
	_, err = empty.Sync(context.Background(), "foo.sig")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSync_NestedFile(t *testing.T) {
	env := setupRepo(t)
	writeTree(t, filepath.Join(env.mirrorA, testTarget), map[string]string{"sub/dir/foo.sig": "x"})

	local, err := env.repo.Sync(context.Background(), "sub/dir/foo.sig")
	require.NoError(t, err)
	assert.FileExists(t, local)
}

func TestCreate_WritesTarAndSig(t *testing.T) {
	env := setupRepo(t)
	src := filepath.Join(env.work, "foo")
	writeTree(t, src, map[string]string{"bin/foo": "binary"})

	ctx := context.Background()
	tarFile, err := env.repo.Create(ctx, src+"/")
	require.NoError(t, err)
	assert.Equal(t, src+".tar", tarFile)

	sigData, err := os.ReadFile(src + ".sig")
	require.NoError(t, err)

	sig, err := env.repo.Signature(ctx, tarFile)
	require.NoError(t, err)
	assert.Equal(t, sig.String()+"\n", string(sigData))
	assert.True(t, sig.IsValid())
}

func TestCreate_MissingDir(t *testing.T) {
	env := setupRepo(t)
	_, err := env.repo.Create(context.Background(), filepath.Join(env.work, "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Contains(t, err.Error(), "not found")

	// 普通文件也不行
	writeTree(t, env.work, map[string]string{"file": "x"})
	_, err = env.repo.Create(context.Background(), filepath.Join(env.work, "file"))
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestFetch_RoundTripIntegrity(t *testing.T) {
	env := setupRepo(t)
	files := map[string]string{
		"bin/foo":      "#!/bin/sh\necho foo\n",
		"etc/foo.conf": "answer = 42\n",
	}
	mustPublish(t, env.repo, env.work, env.mirrorB, "foo", files)

	pkg, err := env.repo.Fetch(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cache, "foo.tar"), pkg.Path())

	root := t.TempDir()
	installed, err := pkg.Install(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/foo", "etc/foo.conf"}, installed)

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
}

func TestFetch_CacheHitSkipsArchiveDownload(t *testing.T) {
	env := setupRepo(t)
	mustPublish(t, env.repo, env.work, env.mirrorA, "foo", map[string]string{"bin/foo": "foo"})
	ctx := context.Background()
	tarRemote := env.repo.RemotePath(env.mirrorA, "foo.tar")

	// 第一次: 下载 .sig 和 .tar
	pkg, err := env.repo.Fetch(ctx, "foo")
	require.NoError(t, err)
	require.NoError(t, pkg.Close())
	assert.Equal(t, 1, env.spy.count(tarRemote))
	assert.NotContains(t, env.notice.String(), "Already downloaded")

	// 第二次: 只同步 .sig，.tar 走本地缓存
	pkg, err = env.repo.Fetch(ctx, "foo")
	require.NoError(t, err)
	require.NoError(t, pkg.Close())
	assert.Equal(t, 1, env.spy.count(tarRemote), "缓存命中时不应再下载归档")
	assert.Equal(t, 2, env.spy.count(env.repo.RemotePath(env.mirrorA, "foo.sig")))
	assert.Contains(t, env.notice.String(), "* Already downloaded foo\n")
}

func TestFetch_TamperedCacheIsResynced(t *testing.T) {
	env := setupRepo(t)
	mustPublish(t, env.repo, env.work, env.mirrorA, "foo", map[string]string{"bin/foo": "foo"})
	ctx := context.Background()

	pkg, err := env.repo.Fetch(ctx, "foo")
	require.NoError(t, err)
	require.NoError(t, pkg.Close())

	// 篡改缓存里的归档
	cached := filepath.Join(env.cache, "foo.tar")
	require.NoError(t, os.WriteFile(cached, []byte("garbage"), 0644))

	pkg, err = env.repo.Fetch(ctx, "foo")
	require.NoError(t, err)
	require.NoError(t, pkg.Close())
	assert.Equal(t, 2, env.spy.count(env.repo.RemotePath(env.mirrorA, "foo.tar")), "篡改后必须重新同步")

	sig, err := env.repo.Signature(ctx, cached)
	require.NoError(t, err)
	assert.Equal(t, pkg.Signature(), sig)
}

func TestFetch_InvalidArchive(t *testing.T) {
	env := setupRepo(t)
	mustPublish(t, env.repo, env.work, env.mirrorA, "foo", map[string]string{"bin/foo": "foo"})

	// 镜像上的归档被替换，签名不再匹配
	require.NoError(t, os.WriteFile(filepath.Join(env.mirrorA, testTarget, "foo.tar"), []byte("evil"), 0644))

	_, err := env.repo.Fetch(context.Background(), "foo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidData))
	assert.Contains(t, err.Error(), "foo not valid")
}

func TestFetch_MalformedSignature(t *testing.T) {
	env := setupRepo(t)
	mustPublish(t, env.repo, env.work, env.mirrorA, "foo", map[string]string{"bin/foo": "foo"})
	require.NoError(t, os.WriteFile(filepath.Join(env.mirrorA, testTarget, "foo.sig"), []byte("not-a-signature\n"), 0644))

	_, err := env.repo.Fetch(context.Background(), "foo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidData))
	assert.Contains(t, err.Error(), "foo.sig malformed")
	assert.Equal(t, 0, env.spy.count(env.repo.RemotePath(env.mirrorA, "foo.tar")), "签名格式错误时不下载归档")
}

func TestFetch_MissingSignature(t *testing.T) {
	env := setupRepo(t)
	_, err := env.repo.Fetch(context.Background(), "ghost")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExtract_AndClean(t *testing.T) {
	env := setupRepo(t)
	mustPublish(t, env.repo, env.work, env.mirrorA, "foo", map[string]string{"share/foo/data": "payload"})
	ctx := context.Background()

	dir, err := env.repo.Extract(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cache, "foo"), dir)

	got, err := os.ReadFile(filepath.Join(dir, "share", "foo", "data"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	removed, err := env.repo.Clean("foo")
	require.NoError(t, err)
	assert.Equal(t, dir, removed)
	assert.NoDirExists(t, dir)

	// 第二次清理必须失败
	_, err = env.repo.Clean("foo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestOpenLocal(t *testing.T) {
	env := setupRepo(t)
	src := filepath.Join(env.work, "bar")
	writeTree(t, src, map[string]string{"bin/bar": "bar"})
	tarFile, err := env.repo.Create(context.Background(), src)
	require.NoError(t, err)

	pkg, err := env.repo.OpenLocal(context.Background(), tarFile)
	require.NoError(t, err)
	data, _ := os.ReadFile(tarFile)
	assert.Equal(t, digest.Sum(data), pkg.Signature())

	root := t.TempDir()
	_, err = pkg.Install(root)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "bin", "bar"))
}

func TestAddMirror(t *testing.T) {
	env := setupRepo(t)
	extra := filepath.Join(t.TempDir(), "mirror-c")
	writeTree(t, filepath.Join(extra, testTarget), map[string]string{"repo.toml": "from C"})

	assert.True(t, env.repo.AddMirror(extra))
	// 重复或空的地址不再追加
	assert.False(t, env.repo.AddMirror(env.mirrorA))
	assert.False(t, env.repo.AddMirror("  "))
	assert.Equal(t, []string{env.mirrorA, env.mirrorB, extra}, env.repo.Mirrors())

	local, err := env.repo.Sync(context.Background(), "repo.toml")
	require.NoError(t, err)
	got, _ := os.ReadFile(local)
	assert.Equal(t, "from C", string(got))
}
