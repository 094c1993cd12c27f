package commands

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pkgutils/pkg/archive"
	"pkgutils/pkg/ledger"
	"pkgutils/pkg/manifest"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <packages...>",
	Short: "Install a package",
	Long: `Fetch, verify and install each package into the install root.
An argument ending in .tar is installed directly from that local file,
resolved against the working directory.`,
	Args: requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("install", args, func(name string) (string, error) {
			if err := installOne(ctx, name); err != nil {
				return "", err
			}
			return "succeeded", nil
		})
		return nil
	},
}

func installOne(ctx context.Context, name string) error {
	// 1. 打开包：本地 .tar 直装，否则走仓库
	var (
		pkg     *archive.Package
		err     error
		source  = ledger.SourceRemote
		pkgName = name
	)
	if strings.HasSuffix(name, ".tar") {
		source = ledger.SourceLocal
		pkgName = strings.TrimSuffix(filepath.Base(name), ".tar")
		localPath := name
		if !filepath.IsAbs(localPath) {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			localPath = filepath.Join(cwd, localPath)
		}
		pkg, err = PKG.Repo.OpenLocal(ctx, localPath)
	} else {
		pkg, err = PKG.Repo.Fetch(ctx, name)
	}
	if err != nil {
		return err
	}

	// 2. 安装 (消费句柄)
	files, err := pkg.Install(PKG.InstallRoot)
	if err != nil {
		return err
	}

	// 3. 记账，失败只告警
	PKG.RecordInstall(ctx, ledger.Entry{
		Package:   pkgName,
		Version:   descriptorVersion(pkgName, files),
		Signature: pkg.Signature().String(),
		Target:    PKG.Repo.Target().String(),
		Root:      PKG.InstallRoot,
		Source:    source,
		Files:     files,
	})
	return nil
}

// descriptorVersion 从包自带的描述文件里取版本
// 描述文件装在 <root>/<installed dir>/<name>.toml，没有或解析失败时返回空
func descriptorVersion(name string, files []string) string {
	rel, err := filepath.Rel(PKG.InstallRoot, PKG.InstalledDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	want := path.Join(filepath.ToSlash(rel), name+".toml")
	for _, f := range files {
		if f != want {
			continue
		}
		data, err := os.ReadFile(filepath.Join(PKG.InstallRoot, filepath.FromSlash(f)))
		if err != nil {
			return ""
		}
		meta, err := manifest.ParseMeta(data)
		if err != nil {
			return ""
		}
		return meta.Version
	}
	return ""
}

func init() {
	rootCmd.AddCommand(installCmd)
}
