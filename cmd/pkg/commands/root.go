package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"pkgutils/pkg/app"
	"pkgutils/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose int

	// 全局应用实例，供子命令使用
	PKG *app.App

	// 状态行写 stderr，列表等正文写 stdout；测试里替换
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "pkg",
	Short: "pkg: a minimal package manager client",
	// 错误由 main 统一以 "pkg: ..." 打印
	SilenceErrors: true,
	SilenceUsage:  true,
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		// -v 提升日志级别
		switch {
		case verbose >= 2:
			viper.Set(config.KeyLogLevel, "debug")
		case verbose == 1:
			viper.Set(config.KeyLogLevel, "info")
		}

		var err error
		PKG, err = app.NewApp(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if PKG == nil {
			return nil
		}
		return PKG.Close()
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.toml, $HOME/.pkg/config.toml or /etc/pkg/config.toml)")
	flags.CountVarP(&verbose, "verbose", "v", "verbosity level (-v info, -vv debug)")

	// 这些参数同时可以写在配置文件或 PKG_* 环境变量里
	flags.String("cache", "", "local cache directory")
	flags.String("target", "", "target triple (default: detected platform)")
	flags.StringArray("mirror", nil, "additional mirror, tried after configured mirrors (repeatable)")
	flags.String("root", "", "install root")

	bindings := map[string]string{
		config.KeyCachePath:    "cache",
		config.KeyTarget:       "target",
		config.KeyMirrorsExtra: "mirror",
		config.KeyInstallRoot:  "root",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	used, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pkg: config error:", err)
		os.Exit(1)
	}
	if used != "" && verbose > 0 {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// commandContext 直接调用 RunE 时 cmd.Context() 为 nil
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
