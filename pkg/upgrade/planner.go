package upgrade

import (
	"context"
	"fmt"
	"io"
	"os"

	"pkgutils/pkg/archive"
	"pkgutils/pkg/ledger"
	"pkgutils/pkg/logging"
	"pkgutils/pkg/manifest"
	"pkgutils/pkg/prompt"
	"pkgutils/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInstalledDir = "/pkg"
	DefaultRoot         = "/"

	question = "Do you want to upgrade these packages? (Y/n) "
)

// Upgrade 一个待升级的包
type Upgrade struct {
	Name          string
	LocalVersion  string
	RemoteVersion string
}

func (u Upgrade) String() string {
	return fmt.Sprintf("%s: %s => %s", u.Name, u.LocalVersion, u.RemoteVersion)
}

// Source 升级所需的仓库能力，*repo.Repo 满足它
type Source interface {
	Sync(ctx context.Context, file string) (string, error)
	Fetch(ctx context.Context, pkg string) (*archive.Package, error)
	Target() types.Target
}

// Recorder 安装成功后写账本
type Recorder interface {
	RecordInstall(ctx context.Context, e ledger.Entry) error
}

// Config 升级器的路径配置
type Config struct {
	InstalledDir string // 已安装描述文件目录
	Root         string // 安装根目录
}

// Planner 比较本地与远程版本，确认后执行升级
type Planner struct {
	src      Source
	cfg      Config
	out      io.Writer
	prompter prompt.Prompter
	recorder Recorder
	logger   *logrus.Logger
}

type Option func(*Planner)

func WithOutput(w io.Writer) Option { return func(p *Planner) { p.out = w } }

func WithPrompter(pr prompt.Prompter) Option { return func(p *Planner) { p.prompter = pr } }

func WithRecorder(r Recorder) Option { return func(p *Planner) { p.recorder = r } }

func WithLogger(l *logrus.Logger) Option { return func(p *Planner) { p.logger = l } }

func NewPlanner(src Source, cfg Config, opts ...Option) *Planner {
	if cfg.InstalledDir == "" {
		cfg.InstalledDir = DefaultInstalledDir
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	p := &Planner{
		src:      src,
		cfg:      cfg,
		out:      os.Stdout,
		prompter: prompt.New(os.Stdin, os.Stdout),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan 计算升级集合
// 对每个本地包，远程版本严格更大才升级；远程缺失记作 ""
// 版本无法比较时调用 report 并跳过该包
func Plan(local, remote *manifest.PackageMetaList, report func(name, localVersion, remoteVersion string, err error)) []Upgrade {
	var upgrades []Upgrade
	for _, name := range local.Names() {
		localVersion := local.Packages[name]
		remoteVersion := remote.Packages[name]

		cmp, err := CompareVersions(localVersion, remoteVersion)
		if err != nil {
			if report != nil {
				report(name, localVersion, remoteVersion, err)
			}
			continue
		}
		if cmp < 0 {
			upgrades = append(upgrades, Upgrade{
				Name:          name,
				LocalVersion:  localVersion,
				RemoteVersion: remoteVersion,
			})
		}
	}
	return upgrades
}

// Check 读取本地描述、同步远程清单并计算升级集合
func (p *Planner) Check(ctx context.Context) ([]Upgrade, error) {
	// 1. 本地已安装
	local, err := manifest.ReadInstalled(p.cfg.InstalledDir, func(path string, err error) {
		p.logger.WithField("path", path).WithError(err).Warn("skipping unreadable descriptor")
	})
	if err != nil {
		return nil, err
	}

	// 2. 远程清单
	tomlFile, err := p.src.Sync(ctx, manifest.RemoteFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tomlFile)
	if err != nil {
		return nil, err
	}
	remote, err := manifest.ParseList(data)
	if err != nil {
		return nil, err
	}

	// 3. 比较
	return Plan(local, remote, func(name, lv, rv string, err error) {
		fmt.Fprintf(p.out, "%s: version parsing error when comparing %s and %s\n", name, lv, rv)
		p.logger.WithFields(logging.PackageFields("upgrade", name)).WithError(err).Debug("version compare failed")
	}), nil
}

// Run 完整的交互式升级流程
func (p *Planner) Run(ctx context.Context) error {
	upgrades, err := p.Check(ctx)
	if err != nil {
		return err
	}

	if len(upgrades) == 0 {
		fmt.Fprintln(p.out, "All packages are up to date.")
		return nil
	}

	for _, u := range upgrades {
		fmt.Fprintln(p.out, u.String())
	}

	answer, err := p.prompter.ReadLine(question)
	if err != nil {
		return err
	}
	if !prompt.Confirm(answer) {
		fmt.Fprintln(p.out, "Cancelling upgrade.")
		return nil
	}

	return p.Apply(ctx, upgrades)
}

// Apply 先按顺序下载全部包，再按顺序安装；任何一步失败即中止
func (p *Planner) Apply(ctx context.Context, upgrades []Upgrade) error {
	fmt.Fprintln(p.out, "Downloading packages")
	packages := make([]*archive.Package, 0, len(upgrades))
	defer func() {
		for _, pkg := range packages {
			pkg.Close()
		}
	}()

	for _, u := range upgrades {
		pkg, err := p.src.Fetch(ctx, u.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
		packages = append(packages, pkg)
	}

	fmt.Fprintln(p.out, "Installing packages")
	for i, pkg := range packages {
		u := upgrades[i]
		files, err := pkg.Install(p.cfg.Root)
		if err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
		p.record(ctx, u, pkg, files)
	}
	return nil
}

// record 账本失败只告警，不影响升级结果
func (p *Planner) record(ctx context.Context, u Upgrade, pkg *archive.Package, files []string) {
	if p.recorder == nil {
		return
	}
	err := p.recorder.RecordInstall(ctx, ledger.Entry{
		Package:   u.Name,
		Version:   u.RemoteVersion,
		Signature: pkg.Signature().String(),
		Target:    p.src.Target().String(),
		Root:      p.cfg.Root,
		Source:    ledger.SourceUpgrade,
		Files:     files,
	})
	if err != nil {
		p.logger.WithFields(logging.PackageFields("upgrade", u.Name)).WithError(err).Warn("failed to record install")
	}
}
