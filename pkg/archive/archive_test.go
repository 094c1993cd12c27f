package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkgutils/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree 按 map 在 root 下创建文件
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// buildArchive 把 dir 打成 tar 文件并返回路径
func buildArchive(t *testing.T, dir string) string {
	t.Helper()
	tarPath := dir + ".tar"
	f, err := os.Create(tarPath)
	require.NoError(t, err)
	_, err = Build(dir, f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return tarPath
}

func TestBuildAndInstall_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	files := map[string]string{
		"bin/foo":         "#!/bin/sh\necho foo\n",
		"etc/foo.conf":    "key = value\n",
		"share/doc/READE": "docs",
	}
	writeTree(t, src, files)

	tarPath := buildArchive(t, src)

	pkg, err := Open(tarPath, "")
	require.NoError(t, err)

	dest := filepath.Join(tmp, "root")
	installed, err := pkg.Install(dest)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bin/foo", "etc/foo.conf", "share/doc/READE"}, installed)

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(got))
	}
}

func TestBuild_EntriesRootedAtArchiveRoot(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	writeTree(t, src, map[string]string{"a/b.txt": "b", "c.txt": "c"})

	var buf bytes.Buffer
	n, err := Build(src, &buf)
	require.NoError(t, err)

	var names []string
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}

	// 字典序遍历，没有 "foo/" 前缀，也没有根目录条目
	assert.Equal(t, []string{"a/", "a/b.txt", "c.txt"}, names)
	assert.Equal(t, 3, n)
}

func TestBuild_HonorsPkgIgnore(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	writeTree(t, src, map[string]string{
		".pkgignore":    "*.o\nbuild\n",
		"main.o":        "obj",
		"build/out.bin": "bin",
		"bin/foo":       "foo",
	})

	tarPath := buildArchive(t, src)
	pkg, err := Open(tarPath, "")
	require.NoError(t, err)

	dest := filepath.Join(tmp, "root")
	installed, err := pkg.Install(dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/foo"}, installed)
	assert.NoFileExists(t, filepath.Join(dest, ".pkgignore"))
	assert.NoDirExists(t, filepath.Join(dest, "build"))
}

func TestBuild_WithoutPkgIgnoreKeepsAllFiles(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	writeTree(t, src, map[string]string{
		".DS_Store": "finder",
		"Thumbs.db": "thumbs",
		"bin/foo":   "foo",
	})

	tarPath := buildArchive(t, src)
	pkg, err := Open(tarPath, "")
	require.NoError(t, err)

	installed, err := pkg.Install(filepath.Join(tmp, "root"))
	require.NoError(t, err)
	assert.Equal(t, []string{".DS_Store", "Thumbs.db", "bin/foo"}, installed)
}

func TestInstall_OverwritesExisting(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	writeTree(t, src, map[string]string{"etc/foo.conf": "new"})
	tarPath := buildArchive(t, src)

	dest := filepath.Join(tmp, "root")
	writeTree(t, dest, map[string]string{"etc/foo.conf": "old content that is longer"})

	pkg, err := Open(tarPath, "")
	require.NoError(t, err)
	_, err = pkg.Install(dest)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dest, "etc", "foo.conf"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

// tarEntry 手工构造归档用的条目
type tarEntry struct {
	name     string
	typeflag byte
	linkname string
	body     string
}

func writeTar(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     0644,
			Size:     int64(len(e.body)),
		}
		if e.typeflag != tar.TypeReg {
			hdr.Size = 0
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestInstall_RejectsPathTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries func(outside string) []tarEntry
	}{
		{
			name: "dot-dot entry",
			entries: func(string) []tarEntry {
				return []tarEntry{{name: "../escaped", typeflag: tar.TypeReg, body: "pwned"}}
			},
		},
		{
			name: "file through earlier symlink",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "link", typeflag: tar.TypeSymlink, linkname: outside},
					{name: "link/escaped", typeflag: tar.TypeReg, body: "pwned"},
				}
			},
		},
		{
			name: "nested dir through earlier symlink",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "link", typeflag: tar.TypeSymlink, linkname: outside},
					{name: "link/sub/", typeflag: tar.TypeDir},
					{name: "link/sub/escaped", typeflag: tar.TypeReg, body: "pwned"},
				}
			},
		},
		{
			name: "relative symlink pointing up",
			entries: func(string) []tarEntry {
				return []tarEntry{
					{name: "up", typeflag: tar.TypeSymlink, linkname: "../outside"},
					{name: "up/escaped", typeflag: tar.TypeReg, body: "pwned"},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			outside := filepath.Join(tmp, "outside")
			require.NoError(t, os.MkdirAll(outside, 0755))
			tarPath := filepath.Join(tmp, "evil.tar")
			writeTar(t, tarPath, tt.entries(outside))

			pkg, err := Open(tarPath, "")
			require.NoError(t, err)

			_, err = pkg.Install(filepath.Join(tmp, "root"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidData), "err: %v", err)
			assert.NoFileExists(t, filepath.Join(tmp, "escaped"))
			assert.NoFileExists(t, filepath.Join(outside, "escaped"))
			assert.NoDirExists(t, filepath.Join(outside, "sub"))
		})
	}
}

func TestInstall_ReplacesSymlinkInsteadOfFollowing(t *testing.T) {
	tmp := t.TempDir()
	victim := filepath.Join(tmp, "victim")
	require.NoError(t, os.WriteFile(victim, []byte("original"), 0644))

	tarPath := filepath.Join(tmp, "swap.tar")
	writeTar(t, tarPath, []tarEntry{
		{name: "conf", typeflag: tar.TypeSymlink, linkname: victim},
		{name: "conf", typeflag: tar.TypeReg, body: "replaced"},
	})

	pkg, err := Open(tarPath, "")
	require.NoError(t, err)
	root := filepath.Join(tmp, "root")
	_, err = pkg.Install(root)
	require.NoError(t, err)

	got, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got), "链接目标不能被改写")

	got, err = os.ReadFile(filepath.Join(root, "conf"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(got))
}

func TestInstall_SymlinkInsideRootIsFollowed(t *testing.T) {
	// merged-usr 布局: lib -> usr/lib
	tmp := t.TempDir()
	tarPath := filepath.Join(tmp, "usr.tar")
	writeTar(t, tarPath, []tarEntry{
		{name: "usr/lib/", typeflag: tar.TypeDir},
		{name: "lib", typeflag: tar.TypeSymlink, linkname: "usr/lib"},
		{name: "lib/libfoo.so", typeflag: tar.TypeReg, body: "elf"},
	})

	pkg, err := Open(tarPath, "")
	require.NoError(t, err)
	root := filepath.Join(tmp, "root")
	files, err := pkg.Install(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "lib/libfoo.so"}, files)

	got, err := os.ReadFile(filepath.Join(root, "usr", "lib", "libfoo.so"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(got))
}

func TestPackage_SingleUse(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "foo")
	writeTree(t, src, map[string]string{"bin/foo": "foo"})
	tarPath := buildArchive(t, src)

	pkg, err := Open(tarPath, "SIG")
	require.NoError(t, err)
	assert.Equal(t, tarPath, pkg.Path())
	assert.Equal(t, types.Signature("SIG"), pkg.Signature())

	var out bytes.Buffer
	require.NoError(t, pkg.List(&out))
	assert.Contains(t, out.String(), "bin/foo")
	assert.Contains(t, out.String(), "bin/")

	// 第二次使用必须失败
	_, err = pkg.Install(filepath.Join(tmp, "root"))
	assert.True(t, errors.Is(err, ErrPackageConsumed))
	assert.True(t, errors.Is(pkg.List(&out), ErrPackageConsumed))

	// Close 幂等
	assert.NoError(t, pkg.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.tar"), "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, target string
		want         bool
	}{
		{"/", "/usr/bin/foo", true},
		{"/tmp/root", "/tmp/root/a", true},
		{"/tmp/root", "/tmp/rootx/a", false},
		{"/tmp/root", "/tmp/a", false},
		{"/tmp/root", "/tmp/root/..foo", true},
	}
	for _, tt := range tests {
		t.Run(strings.Join([]string{tt.root, tt.target}, "->"), func(t *testing.T) {
			assert.Equal(t, tt.want, within(tt.root, tt.target))
		})
	}
}
