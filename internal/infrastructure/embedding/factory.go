package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"rail-inspection-ai-api/internal/config"
)

// NewEmbedder 按配置的提供商创建 Embedder
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		var dims *int
		if cfg.Dimension > 0 {
			dims = &cfg.Dimension
		}
		// OpenAI 兼容接口；Endpoint 为空时使用官方地址
		embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: dims,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create eino embedder: %w", err)
		}
		return embedder, nil
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg)
	case "http":
		return NewHTTPEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
