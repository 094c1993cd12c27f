package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 配置键
const (
	KeyCachePath    = "cache.path"
	KeyTarget       = "target"
	KeyMirrorsDir   = "mirrors.dir"
	KeyMirrorsExtra = "mirrors.extra"
	KeyInstalledDir = "installed.dir"
	KeyInstallRoot  = "install.root"

	KeyTransportTimeout   = "transport.timeout"
	KeyTransportUserAgent = "transport.user_agent"
	KeyTransportProgress  = "transport.progress"

	KeyS3Region    = "s3.region"
	KeyS3Endpoint  = "s3.endpoint"
	KeyS3AccessKey = "s3.access_key_id"
	KeyS3SecretKey = "s3.secret_access_key"

	KeySigcacheRedisURL = "sigcache.redis_url"
	KeySigcacheTTL      = "sigcache.ttl"

	KeyLedgerDriver = "ledger.driver"
	KeyLedgerDSN    = "ledger.dsn"

	KeyLogLevel      = "log.level"
	KeyLogFile       = "log.file"
	KeyLogMaxSize    = "log.max_size"
	KeyLogMaxBackups = "log.max_backups"
	KeyLogCompress   = "log.compress"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// 返回实际使用的配置文件路径，没找到配置文件时为空
func Load(cfgFile string) (string, error) {
	// 1. 设置默认值 (Defaults)
	SetDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录 -> ~/.pkg -> /etc/pkg
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".pkg"))
		}
		viper.AddConfigPath("/etc/pkg")

		viper.SetConfigType("toml")
		viper.SetConfigName("config") // 找 config.toml
	}

	// 3. 读取环境变量 (PKG_CACHE_PATH 等)
	viper.SetEnvPrefix("PKG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 只是没找到配置文件不算错，格式错误才是错
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("fatal error config file: %w", err)
	}

	return viper.ConfigFileUsed(), nil
}

// SetDefaults 所有键的默认值
func SetDefaults() {
	// 仓库
	viper.SetDefault(KeyCachePath, "/tmp/pkg")
	viper.SetDefault(KeyTarget, "") // 空表示按当前平台探测
	viper.SetDefault(KeyMirrorsDir, "/etc/pkg.d")
	viper.SetDefault(KeyMirrorsExtra, []string{})
	viper.SetDefault(KeyInstalledDir, "/pkg")
	viper.SetDefault(KeyInstallRoot, "/")

	// 传输
	viper.SetDefault(KeyTransportTimeout, 5*time.Second)
	viper.SetDefault(KeyTransportUserAgent, "pkgutils")
	viper.SetDefault(KeyTransportProgress, true)

	viper.SetDefault(KeyS3Region, "us-east-1")

	// 签名缓存，默认关闭
	viper.SetDefault(KeySigcacheRedisURL, "")
	viper.SetDefault(KeySigcacheTTL, 24*time.Hour)

	// 账本，sqlite 路径为空时放在缓存目录下
	viper.SetDefault(KeyLedgerDriver, "sqlite")
	viper.SetDefault(KeyLedgerDSN, "")

	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyLogFile, "")
	viper.SetDefault(KeyLogMaxSize, 10)
	viper.SetDefault(KeyLogMaxBackups, 3)
	viper.SetDefault(KeyLogCompress, false)
}
