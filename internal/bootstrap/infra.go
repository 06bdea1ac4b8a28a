// Package bootstrap 组装各进程共享的基础设施与应用服务
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/config"
	infraembedding "rail-inspection-ai-api/internal/infrastructure/embedding"
	"rail-inspection-ai-api/internal/infrastructure/persistence/milvus"
	"rail-inspection-ai-api/internal/infrastructure/persistence/postgres"
	"rail-inspection-ai-api/internal/infrastructure/persistence/redis"
	"rail-inspection-ai-api/pkg/logger"
)

// 向量存储后端
const (
	VectorBackendMilvus = "milvus"
	VectorBackendMemory = "memory"
)

// Infra 基础设施依赖容器；未启用的组件为 nil
type Infra struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Milvus   *milvus.Client
	Embedder einoembedding.Embedder
	Vectors  retrieval.VectorStore

	cleanups []func()
}

// Close 按创建的逆序释放资源
func (i *Infra) Close() {
	for j := len(i.cleanups) - 1; j >= 0; j-- {
		i.cleanups[j]()
	}
	i.cleanups = nil
}

func (i *Infra) onClose(fn func()) {
	i.cleanups = append(i.cleanups, fn)
}

// NewInfra 按配置初始化 Postgres、Redis、向量库与 Embedder。
// 任一已启用组件失败时释放已创建的资源并返回错误。
func NewInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}
	if err := infra.init(ctx, cfg); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *Infra) init(ctx context.Context, cfg *config.Config) error {
	var err error
	if i.Postgres, err = ProvidePostgresClient(cfg); err != nil {
		return err
	}
	if pg := i.Postgres; pg != nil {
		i.onClose(func() { _ = pg.Close() })
	}

	if i.Redis, err = ProvideRedisClient(cfg); err != nil {
		return err
	}
	if rc := i.Redis; rc != nil {
		i.onClose(func() { _ = rc.Close() })
	}

	if i.Embedder, err = ProvideEmbedder(ctx, cfg); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Vector.Backend)) {
	case "", VectorBackendMilvus:
		mc, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return fmt.Errorf("init milvus: %w", err)
		}
		i.Milvus = mc
		i.onClose(func() { _ = mc.Close() })
		i.Vectors = milvus.NewStore(mc, cfg.Embedding.Dimension)
	case VectorBackendMemory:
		logger.Warn(ctx, "using in-memory vector store, indexes are lost on restart")
		i.Vectors = retrieval.NewMemoryStore()
	default:
		return fmt.Errorf("unknown vector backend: %s", cfg.Vector.Backend)
	}
	return nil
}

// ProvidePostgresClient 未启用时返回 nil
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	return client, nil
}

// ProvideRedisClient 未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	return client, nil
}

// ProvideEmbedder 创建 Embedder
func ProvideEmbedder(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return embedder, nil
}
