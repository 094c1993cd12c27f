package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"pkgutils/pkg/transport"
	"pkgutils/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现 transport.Transport，服务 s3://bucket/prefix 形式的镜像
type Adapter struct {
	client *s3.Client
	out    io.Writer
}

// Config 用于初始化 Adapter
// Bucket 不在这里：每个镜像地址自带 bucket
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config, out io.Writer) (*Adapter, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	// 1. 基础配置；没给静态密钥时沿用默认凭证链 (环境变量、~/.aws 等)
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. MinIO 等自建服务需要 BaseEndpoint + Path Style
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Adapter{client: client, out: out}, nil
}

// ParseLocation 拆分 s3://bucket/key
func ParseLocation(remote string) (bucket, key string, err error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", remote)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 location %q has no key", remote)
	}
	return u.Host, key, nil
}

func (a *Adapter) Download(ctx context.Context, remotePath, localPath string) error {
	bucket, key, err := ParseLocation(remotePath)
	if err != nil {
		return err
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 映射为 NotFound
		if isNotFound(err) {
			return fmt.Errorf("%s not found: %w", remotePath, types.ErrNotFound)
		}
		return fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	return transport.Save(localPath, resp.Body, aws.ToInt64(resp.ContentLength), a.out)
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return true
	}
	// 兼容性：某些 S3 实现只返回 generic 404
	return strings.Contains(err.Error(), "StatusCode: 404")
}
