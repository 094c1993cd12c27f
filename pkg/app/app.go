// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"pkgutils/pkg/config"
	"pkgutils/pkg/digest"
	"pkgutils/pkg/ledger"
	"pkgutils/pkg/logging"
	"pkgutils/pkg/mirrors"
	"pkgutils/pkg/platform"
	"pkgutils/pkg/repo"
	"pkgutils/pkg/sigcache"
	"pkgutils/pkg/transport"
	"pkgutils/pkg/transport/disk"
	"pkgutils/pkg/transport/https"
	"pkgutils/pkg/transport/s3"
	"pkgutils/pkg/types"
	"pkgutils/pkg/upgrade"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Repo    *repo.Repo
	Planner *upgrade.Planner
	// Ledger 为 nil 表示账本被关闭或不可用
	Ledger *ledger.Repository
	Logger *logrus.Logger

	InstallRoot  string
	InstalledDir string

	closers []io.Closer
}

// NewApp 是工厂函数，按 Viper 配置组装整台机器
// 它不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 日志
	logger, err := logging.InitLogger(logging.Options{
		Level:      viper.GetString(config.KeyLogLevel),
		File:       viper.GetString(config.KeyLogFile),
		MaxSize:    viper.GetInt(config.KeyLogMaxSize),
		MaxBackups: viper.GetInt(config.KeyLogMaxBackups),
		Compress:   viper.GetBool(config.KeyLogCompress),
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Logger:       logger,
		InstallRoot:  viper.GetString(config.KeyInstallRoot),
		InstalledDir: viper.GetString(config.KeyInstalledDir),
	}

	// 2. 目标平台
	target, err := resolveTarget(ctx, logger)
	if err != nil {
		return nil, err
	}

	// 3. 镜像列表：配置目录里的按原样使用，额外镜像稍后追加在末尾
	mirrorList, err := loadMirrors()
	if err != nil {
		return nil, err
	}
	extra := viper.GetStringSlice(config.KeyMirrorsExtra)

	// 4. 传输层
	var progress io.Writer
	if viper.GetBool(config.KeyTransportProgress) {
		progress = os.Stderr
	}
	mux, err := initTransport(ctx, append(slices.Clone(mirrorList), extra...), progress, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init transport: %w", err)
	}

	// 5. 签名计算 (可选 Redis 记忆)
	digester := a.initDigester(logger)

	// 6. 仓库
	cacheRoot := viper.GetString(config.KeyCachePath)
	a.Repo = repo.New(repo.Config{
		CacheRoot: cacheRoot,
		Mirrors:   mirrorList,
		Target:    target,
	}, mux,
		repo.WithDigester(digester),
		repo.WithLogger(logger),
	)
	for _, m := range extra {
		if !a.Repo.AddMirror(m) {
			logger.WithField("mirror", m).Debug("skipping duplicate mirror")
		}
	}
	if len(a.Repo.Mirrors()) == 0 {
		logger.WithField("dir", viper.GetString(config.KeyMirrorsDir)).Warn("no mirrors configured")
	}

	// 7. 账本 (可用性优先：打不开就关闭)
	a.initLedger(ctx, cacheRoot, logger)

	// 8. 升级器
	opts := []upgrade.Option{upgrade.WithLogger(logger)}
	if a.Ledger != nil {
		opts = append(opts, upgrade.WithRecorder(a.Ledger))
	}
	a.Planner = upgrade.NewPlanner(a.Repo, upgrade.Config{
		InstalledDir: a.InstalledDir,
		Root:         a.InstallRoot,
	}, opts...)

	return a, nil
}

// Close 释放数据库与 Redis 连接
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// RecordInstall 写账本，账本关闭或失败时只记日志
func (a *App) RecordInstall(ctx context.Context, e ledger.Entry) {
	if a.Ledger == nil {
		return
	}
	if err := a.Ledger.RecordInstall(ctx, e); err != nil {
		a.Logger.WithFields(logging.PackageFields("install", e.Package)).WithError(err).Warn("failed to record install")
	}
}

// resolveTarget 显式配置优先，否则按当前平台探测
func resolveTarget(ctx context.Context, logger *logrus.Logger) (types.Target, error) {
	if t := viper.GetString(config.KeyTarget); t != "" {
		return types.Target(t), nil
	}

	info, err := platform.Detect(ctx)
	if err != nil {
		return "", err
	}
	logger.WithFields(logrus.Fields{
		"os":       info.OS,
		"arch":     info.Arch,
		"platform": info.Platform,
		"version":  info.Version,
	}).Debug("detected platform")
	return info.Target(), nil
}

func loadMirrors() ([]string, error) {
	return mirrors.Load(viper.GetString(config.KeyMirrorsDir))
}

// initTransport 注册各 scheme 的传输实现
// S3 客户端只在镜像列表里真的有 s3:// 时才创建
func initTransport(ctx context.Context, mirrorList []string, progress io.Writer, logger *logrus.Logger) (*transport.Mux, error) {
	mux := transport.NewMux(os.Stderr, logger)

	mux.Handle("file", disk.NewAdapter(progress))

	web := https.NewAdapter(https.Config{
		Timeout:   viper.GetDuration(config.KeyTransportTimeout),
		UserAgent: viper.GetString(config.KeyTransportUserAgent),
	}, progress)
	mux.Handle("https", web)
	mux.Handle("http", web)

	for _, m := range mirrorList {
		if transport.SchemeOf(m) != "s3" {
			continue
		}
		s3Adapter, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString(config.KeyS3Endpoint),
			Region:          viper.GetString(config.KeyS3Region),
			AccessKeyID:     viper.GetString(config.KeyS3AccessKey),
			SecretAccessKey: viper.GetString(config.KeyS3SecretKey),
		}, progress)
		if err != nil {
			return nil, err
		}
		mux.Handle("s3", s3Adapter)
		break
	}

	return mux, nil
}

func (a *App) initDigester(logger *logrus.Logger) digest.Digester {
	base := digest.NewFileDigester()

	redisURL := viper.GetString(config.KeySigcacheRedisURL)
	if redisURL == "" {
		return base
	}

	cached, err := sigcache.NewCachedDigester(base, sigcache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration(config.KeySigcacheTTL),
	}, logger)
	if err != nil {
		// 缓存故障降级
		logger.WithError(err).Warn("signature cache disabled")
		return base
	}
	a.closers = append(a.closers, cached)
	return cached
}

func (a *App) initLedger(ctx context.Context, cacheRoot string, logger *logrus.Logger) {
	driver := viper.GetString(config.KeyLedgerDriver)
	if driver == ledger.DriverNone {
		return
	}

	dsn := viper.GetString(config.KeyLedgerDSN)
	if dsn == "" && (driver == ledger.DriverSQLite || driver == "") {
		dsn = filepath.Join(cacheRoot, "ledger.db")
	}

	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := ledger.NewDB(openCtx, ledger.Config{Driver: driver, DSN: dsn})
	if err != nil {
		logger.WithError(err).Warn("install ledger disabled")
		return
	}
	a.closers = append(a.closers, db)
	a.Ledger = ledger.NewRepository(db)
}
