// Package postgres 基于 GORM 持久化点检报告与异步任务
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rail-inspection-ai-api/internal/config"
)

var tracer = otel.Tracer("postgres")

const defaultSlowQuery = 500 * time.Millisecond

// Client 持有 GORM 连接池
type Client struct {
	db *gorm.DB
}

// NewClient 打开连接池、探活，AutoMigrate 开启时同步表结构
func NewClient(cfg *config.PostgresConfig) (*Client, error) {
	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: newGormLogger(slow)})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	c := &Client{db: db}
	if cfg.AutoMigrate {
		if err := c.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return c, nil
}

// NewClientFromDB 包装已有连接（测试用 sqlmock）
func NewClientFromDB(db *gorm.DB) *Client {
	return &Client{db: db}
}

// Migrate 同步 inspection_documents 与 pipeline_jobs 表
func (c *Client) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&documentModel{}, &jobModel{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (c *Client) DB() *gorm.DB {
	return c.db
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 就绪探测
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.HealthCheck")
	defer span.End()

	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}
