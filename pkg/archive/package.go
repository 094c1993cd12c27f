package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"pkgutils/pkg/types"
)

var ErrPackageConsumed = errors.New("package handle already consumed")

// Package 是一个已打开的本地归档
// 句柄只能被 Install 或 List 使用一次，之后文件即被关闭
type Package struct {
	path     string
	sig      types.Signature
	file     *os.File
	consumed bool
}

// Open 打开 path 处的归档
// sig 是它已通过校验的签名；本地直装的归档可以传空
func Open(path string, sig types.Signature) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, types.ErrNotFound)
		}
		return nil, err
	}
	return &Package{path: path, sig: sig, file: f}, nil
}

func (p *Package) Path() string { return p.path }

func (p *Package) Signature() types.Signature { return p.sig }

// Close 释放文件句柄，可重复调用
func (p *Package) Close() error {
	p.consumed = true
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// take 取出 tar 读取器并把句柄标记为已消费
func (p *Package) take() (*tar.Reader, error) {
	if p.consumed || p.file == nil {
		return nil, fmt.Errorf("%s: %w", p.path, ErrPackageConsumed)
	}
	p.consumed = true
	return tar.NewReader(p.file), nil
}

// Install 把全部条目解到 root 下，已有文件直接覆盖
// 返回写入的相对路径 (不含目录)
func (p *Package) Install(root string) ([]string, error) {
	tr, err := p.take()
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create install root: %w", err)
	}
	// 之前解出的符号链接会被后面的条目跟随，所以要按真实路径判断
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve install root: %w", err)
	}

	var installed []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return installed, fmt.Errorf("read tar header: %w: %v", types.ErrInvalidData, err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if name == "" || name == "." {
			continue
		}

		target := filepath.Join(root, filepath.FromSlash(name))
		// 路径穿越检查：条目必须落在 root 之内
		if !within(root, target) {
			return installed, fmt.Errorf("illegal file path %s: %w", hdr.Name, types.ErrInvalidData)
		}
		// 目录条目检查自身，文件和链接检查父目录
		checked := filepath.Dir(target)
		if hdr.Typeflag == tar.TypeDir {
			checked = target
		}
		if err := checkResolved(realRoot, checked); err != nil {
			return installed, fmt.Errorf("illegal file path %s: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return installed, fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err := writeFile(target, hdr, tr); err != nil {
				return installed, err
			}
			installed = append(installed, name)

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return installed, fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			// 覆盖语义：先删掉旧的
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return installed, fmt.Errorf("replace %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return installed, fmt.Errorf("create symlink %s: %w", target, err)
			}
			installed = append(installed, name)

		default:
			// 设备文件等特殊类型跳过
			continue
		}
	}

	return installed, nil
}

// List 逐条打印归档内容
func (p *Package) List(w io.Writer) error {
	tr, err := p.take()
	if err != nil {
		return err
	}
	defer p.Close()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tw.Flush()
			return fmt.Errorf("read tar header: %w: %v", types.ErrInvalidData, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", hdr.FileInfo().Mode(), fmtSize(hdr.Size), hdr.Name)
	}
	return tw.Flush()
}

func writeFile(target string, hdr *tar.Header, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	// 已有的同名符号链接直接替换，不能顺着它写到别处
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s: %w", target, err)
		}
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	// O_TRUNC 不会改已存在文件的权限
	return os.Chmod(target, os.FileMode(hdr.Mode).Perm())
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm()
	if mode == 0 {
		return 0755
	}
	return mode
}

// within 判断 target 是否位于 root 之内
// root 为 "/" 时不能用前缀拼接判断
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkResolved 解析 path 中已存在部分的符号链接，要求结果仍在 realRoot 之内
// 尚不存在的部分之后由 MkdirAll 创建为真实目录，不会再穿出去
func checkResolved(realRoot, path string) error {
	existing := path
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			rest, err := filepath.Rel(existing, path)
			if err != nil {
				return err
			}
			if !within(realRoot, filepath.Join(resolved, rest)) {
				return types.ErrInvalidData
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return err
		}
		existing = parent
	}
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
