package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"undrgen/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string // 所有 key 的公共前缀，例如 "datasets"
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	// 3. 尽力创建 Bucket
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket})
		if err != nil {
			// 并发创建或权限不足，继续；真正的问题会在第一次 Put 时暴露
			slog.Warn("failed to ensure bucket exists", "bucket", cfg.Bucket, "error", err)
		}
	}

	return &Adapter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// objectKey 把数据集内的相对路径映射为 S3 Key
// Logic: prefix "datasets", key "a/-index.json" -> "datasets/a/-index.json"
func (s *Adapter) objectKey(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	if s.prefix == "" {
		return clean, nil
	}
	return s.prefix + "/" + clean, nil
}

// contentType 让浏览器和 HTTP 镜像能正确识别索引文件
func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

// Put 上传对象
func (s *Adapter) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        r,
		ContentType: aws.String(contentType(key)),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

// Get 下载对象
func (s *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}

	return resp.Body, nil
}

// Has 检查对象是否存在
func (s *Adapter) Has(ctx context.Context, key string) (bool, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}

	return false, err
}
