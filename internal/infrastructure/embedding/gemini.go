package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rail-inspection-ai-api/internal/config"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiEmbedder Gemini 向量化
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	batchSize int
}

// NewGeminiEmbedder 创建 Gemini Embedder
func NewGeminiEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > 100 {
		// BatchEmbedContents 单次最多 100 条
		batch = 100
	}
	return &GeminiEmbedder{client: client, model: model, batchSize: batch}, nil
}

// Close 释放客户端
func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}

// EmbedStrings 实现 embedding.Embedder
func (g *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	em := g.client.EmbeddingModel(g.model)
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embed: want %d vectors got %d", end-start, len(res.Embeddings))
		}
		for _, e := range res.Embeddings {
			vec := make([]float64, len(e.Values))
			for i, v := range e.Values {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}
