package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config 数据库配置
type Config struct {
	Driver string // "sqlite" (默认) 或 "postgres"

	// sqlite
	Path string // 例如 ".undr/journal.db"

	// postgres
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable" for local

	// Verbose 打开 SQL 日志
	Verbose bool
}

// DB 封装了 GORM 实例，作为转换日志的入口
type DB struct {
	conn *gorm.DB
}

// NewDB 按驱动打开数据库，并自动迁移表结构
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.Verbose {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite 只允许一个写者，多个 worker 并发记录时在连接池里排队
		sqlDB.SetMaxOpenConns(1)
	}

	// 验证连接是否存活
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	d := NewWithConn(db)
	if err := d.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return d, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite journal requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
		return sqlite.Open(cfg.Path + "?_busy_timeout=5000&_journal_mode=WAL"), nil
	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}

// NewWithConn 允许使用现有的 GORM 连接初始化 DB (依赖注入、单元测试)
func NewWithConn(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

// AutoMigrate 迁移本包的所有模型
func (d *DB) AutoMigrate() error {
	return d.conn.AutoMigrate(&Run{}, &TaskRecord{})
}

func (d *DB) GetConn() *gorm.DB {
	return d.conn
}

// Close 关闭底层连接池
func (d *DB) Close() error {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
