package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"pkgutils/pkg/ignore"
)

// Build 把 dir 下的完整目录树写成 tar 流
// 条目名相对于 dir (归档根，无目录前缀)，按字典序遍历，命中 .pkgignore 的路径被跳过
// 返回写入的条目数
func Build(dir string, w io.Writer) (int, error) {
	matcher, err := ignore.NewMatcher(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to load ignore rules: %w", err)
	}

	tw := tar.NewWriter(w)
	count := 0

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		// 根目录本身不进归档
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		if matcher.Matches(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := appendEntry(tw, path, name, d); err != nil {
			return fmt.Errorf("failed to archive %s: %w", name, err)
		}
		count++
		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return count, err
	}

	// Close 会写出两个全零块作为归档结尾
	if err := tw.Close(); err != nil {
		return count, err
	}
	return count, nil
}

func appendEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
