package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"undrgen/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// push 一个大数据集时，大部分文件在远端已经存在，Has 是最频繁的调用
type CachedStore struct {
	backend   storage.Store // 被装饰的底层存储 (如 S3)
	client    *redis.Client // Redis 客户端
	ttl       time.Duration // 缓存过期时间 (例如 24h)
	namespace string
	logger    *slog.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// Namespace 区分不同的远端 (bucket/prefix)，避免缓存串台
	Namespace string
}

func NewCachedStore(backend storage.Store, cfg Config, logger *slog.Logger) (*CachedStore, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend:   backend,
		client:    client,
		ttl:       cfg.TTL,
		namespace: cfg.Namespace,
		logger:    logger,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(key string) string {
	return "undr:obj:" + s.namespace + ":" + key
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, key string) (bool, error) {
	ck := s.cacheKey(key)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, ck).Result()
	if err != nil {
		// 缓存故障降级：Redis 不可用时退化为无缓存模式
		s.logger.Warn("redis exists failed, falling back to backend", "key", key, "error", err)
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中 (Cache Miss)，查底层存储
	found, err := s.backend.Has(ctx, key)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (Cache Fill)
	if found {
		// 异步写入 Redis，不阻塞主流程
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, ck, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 穿透写入底层存储，成功后更新缓存
// 与 Has 不同，Put 不做存在性短路：索引文件每次 push 都要覆盖
func (s *CachedStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.backend.Put(ctx, key, r, size); err != nil {
		return err
	}

	// 只有底层写入成功了，才写 Redis；Set 失败不影响主流程
	if err := s.client.Set(ctx, s.cacheKey(key), "1", s.ttl).Err(); err != nil {
		s.logger.Warn("redis set failed", "key", key, "error", err)
	}
	return nil
}

// Get 透传，只缓存存在性，不缓存数据
func (s *CachedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Close 关闭 Redis 连接，不关闭底层存储
func (s *CachedStore) Close() error {
	return s.client.Close()
}
