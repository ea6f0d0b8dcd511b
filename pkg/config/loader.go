package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidLogSetting = errors.New("invalid log setting")

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.undr -> ~/.undr
		viper.AddConfigPath(".")
		viper.AddConfigPath(".undr")
		viper.AddConfigPath(filepath.Join(home, ".undr"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (UNDR_S3_BUCKET 等)
	viper.SetEnvPrefix("UNDR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	// 没找到配置文件不算错 (可能只用环境变量)，格式错误才算
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return nil
}

// ConfigFileUsed 返回实际加载的配置文件，没有时为空
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

func setDefaults() {
	// 转换
	viper.SetDefault("workers", runtime.NumCPU())
	viper.SetDefault("debounce.period", time.Second)
	viper.SetDefault("compression.codec", "zstd")

	// 镜像存储 (undr push 的目标)
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(".undr", "mirror"))
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.endpoint", "")
	viper.SetDefault("s3.bucket", "undr")
	viper.SetDefault("s3.prefix", "")
	viper.SetDefault("s3.access_key_id", "")
	viper.SetDefault("s3.secret_access_key", "")

	// Has 缓存，为空表示不启用
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 转换日志
	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.driver", "sqlite")
	viper.SetDefault("journal.path", filepath.Join(".undr", "journal.db"))

	// 数据库默认值 (journal.driver=postgres 时使用)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "undr")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "undr")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// NewLogger 按 log.level / log.format 构造 slog.Logger
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl := slog.LevelInfo
	if level == "" {
		level = lvl.String()
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: level %q", ErrInvalidLogSetting, level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: format %q (want text or json)", ErrInvalidLogSetting, format)
	}
}
