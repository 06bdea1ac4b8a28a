// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/internal/config"
	domain "rail-inspection-ai-api/internal/domain/entity"
)

var tracer = otel.Tracer("milvus")

// HNSW 默认参数
const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 200
	defaultSearchEf           = 64
	connectTimeout            = 10 * time.Second
)

// Client Milvus 客户端；每个索引命名空间对应一个集合
type Client struct {
	milvus client.Client
	config config.MilvusConfig
}

// NewClient 连接 Milvus，未配置的 HNSW 参数取默认值
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c := *cfg
	if c.HNSWM <= 0 {
		c.HNSWM = defaultHNSWM
	}
	if c.HNSWEfConstruction <= 0 {
		c.HNSWEfConstruction = defaultHNSWEfConstruction
	}
	if c.SearchEf <= 0 {
		c.SearchEf = defaultSearchEf
	}

	ccfg := client.Config{Address: c.Addr()}
	if c.User != "" && c.Password != "" {
		ccfg.Username = c.User
		ccfg.Password = c.Password
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	mc, err := client.NewClient(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", ccfg.Address, err)
	}
	return &Client{milvus: mc, config: c}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 就绪探测，Milvus 报告不健康时返回原因
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	state, err := c.milvus.CheckHealth(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	if !state.IsHealthy {
		return fmt.Errorf("milvus unhealthy: %s", strings.Join(state.Reasons, "; "))
	}
	return nil
}

// collection 命名空间对应的集合名：[prefix_]<namespace>_chunks
func (c *Client) collection(ns domain.Namespace) string {
	name := string(ns) + "_" + collectionSuffix
	if c.config.CollectionPrefix != "" {
		return c.config.CollectionPrefix + "_" + name
	}
	return name
}

func (c *Client) hnswIndex() (entity.Index, error) {
	return entity.NewIndexHNSW(entity.COSINE, c.config.HNSWM, c.config.HNSWEfConstruction)
}

// searchEf ef 不小于返回条数
func (c *Client) searchEf(limit int) int {
	if limit > c.config.SearchEf {
		return limit
	}
	return c.config.SearchEf
}

func (c *Client) hasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()
	return c.milvus.HasCollection(ctx, name)
}

func (c *Client) loadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()
	return c.milvus.LoadCollection(ctx, name, false)
}

func (c *Client) dropCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.DropCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()
	return c.milvus.DropCollection(ctx, name)
}
