// Package redis 提供问答缓存、限流与任务队列使用的 Redis 客户端
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rail-inspection-ai-api/internal/config"
)

var tracer = otel.Tracer("redis")

// Client Redis 客户端。同一连接池同时服务缓存、限流与 Stream 消费。
type Client struct {
	rdb *redis.Client
}

// NewClient 创建客户端并在 DialTimeout 内完成一次 PING
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis 包装已有连接（测试使用 miniredis）
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis 底层客户端，供 messaging 直接操作 Stream
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close 关闭连接池
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 就绪探测，记录连接池占用
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	stats := c.rdb.PoolStats()
	span.SetAttributes(
		attribute.Int64("redis.pool.total", int64(stats.TotalConns)),
		attribute.Int64("redis.pool.idle", int64(stats.IdleConns)),
	)
	return nil
}
