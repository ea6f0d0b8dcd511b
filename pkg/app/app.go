// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"undrgen/pkg/compress"
	"undrgen/pkg/config"
	"undrgen/pkg/journal"
	"undrgen/pkg/storage"
	"undrgen/pkg/storage/cache"
	"undrgen/pkg/storage/disk"
	"undrgen/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Logger *slog.Logger
	Codec  compress.Codec

	// Journal 在 journal.enabled=false 时为 nil
	Journal *journal.Repository

	mirror storage.Store
	closer []func() error
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
// 镜像存储只有 push 需要，由 Mirror 按需创建
func NewApp(ctx context.Context) (*App, error) {
	// 1. 日志
	logger, err := config.NewLogger(os.Stderr, viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		return nil, err
	}

	// 2. 压缩编码
	codec, err := compress.Lookup(viper.GetString("compression.codec"))
	if err != nil {
		return nil, err
	}

	a := &App{Logger: logger, Codec: codec}

	// 3. 转换日志
	if viper.GetBool("journal.enabled") {
		db, err := journal.NewDB(ctx, journalConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.Journal = journal.NewRepository(db)
		a.closer = append(a.closer, db.Close)
	}
	return a, nil
}

func journalConfig() journal.Config {
	return journal.Config{
		Driver:   viper.GetString("journal.driver"),
		Path:     viper.GetString("journal.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Verbose:  viper.GetString("log.level") == "debug",
	}
}

// Mirror 返回 undr push 的目标存储，首次调用时初始化
func (a *App) Mirror(ctx context.Context) (storage.Store, error) {
	if a.mirror != nil {
		return a.mirror, nil
	}

	store, err := initStore(ctx, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 可选：Redis 存在性缓存
	if url := viper.GetString("cache.redis_url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL:  url,
			TTL:       viper.GetDuration("cache.ttl"),
			Namespace: mirrorNamespace(),
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, cached.Close)
		store = cached
		a.Logger.Debug("mirror cache enabled", "namespace", mirrorNamespace())
	}

	a.mirror = store
	return store, nil
}

// initStore 根据 storage.type 创建镜像存储
// baseDir 用于解析相对的 storage.path
func initStore(ctx context.Context, baseDir string) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage.path is required for disk storage")
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return disk.NewAdapter(path)

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}

// mirrorNamespace 区分不同的镜像目标
func mirrorNamespace() string {
	if viper.GetString("storage.type") == "s3" {
		return "s3:" + viper.GetString("s3.bucket") + "/" + viper.GetString("s3.prefix")
	}
	return "disk:" + viper.GetString("storage.path")
}

// Close 释放数据库和缓存连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		errs = append(errs, a.closer[i]())
	}
	a.closer = nil
	return errors.Join(errs...)
}
