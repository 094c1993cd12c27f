package sigcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pkgutils/pkg/digest"
	"pkgutils/pkg/types"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachedDigester 是一个装饰器，用 Redis 记住大文件的签名
// 未修改过的归档 (size、mtime、inode、ctime 都不变) 不必重新做 SHA3-512
type CachedDigester struct {
	backend digest.Digester
	client  *redis.Client
	ttl     time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

type Config struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedDigester(backend digest.Digester, cfg Config, logger *logrus.Logger) (*CachedDigester, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedDigester{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// cacheKey 以绝对路径为键，添加前缀防止冲突
func (d *CachedDigester) cacheKey(absPath string) string {
	return "pkg:sig:" + absPath
}

func (d *CachedDigester) FileSignature(ctx context.Context, path string) (types.Signature, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return d.backend.FileSignature(ctx, path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		// 缺失等错误交给底层统一报告
		return d.backend.FileSignature(ctx, path)
	}
	key := d.cacheKey(abs)

	// 1. 查 Redis
	raw, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if e, decErr := decodeEntry(raw); decErr == nil && e.matches(info) {
			return types.Signature(e.Signature), nil
		}
	case errors.Is(err, redis.Nil):
		// miss
	default:
		// 缓存故障降级：退化为直接计算
		d.warn(err, abs)
	}

	// 2. 穿透到底层计算
	sig, err := d.backend.FileSignature(ctx, path)
	if err != nil {
		return "", err
	}

	// 3. 回填；失败不影响结果
	e, ok := newEntry(info, sig.String(), d.now())
	if !ok {
		return sig, nil
	}
	data, err := encodeEntry(e)
	if err == nil {
		err = d.client.Set(ctx, key, data, d.ttl).Err()
	}
	if err != nil {
		d.warn(err, abs)
	}

	return sig, nil
}

func (d *CachedDigester) Close() error {
	return d.client.Close()
}

func (d *CachedDigester) warn(err error, path string) {
	if d.logger == nil {
		return
	}
	d.logger.WithFields(logrus.Fields{
		"action": "sigcache",
		"path":   path,
	}).Warnf("redis error: %v", err)
}
