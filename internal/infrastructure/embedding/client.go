// Package embedding 提供规程与报告索引使用的 Embedder
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rail-inspection-ai-api/internal/config"
)

var tracer = otel.Tracer("embedding")

const (
	defaultHTTPModel     = "BAAI/bge-m3"
	defaultHTTPBatchSize = 32
)

// HTTPEmbedder 自建向量化服务客户端。
// 协议：POST {endpoint}/embed，请求 {"texts":[...],"model":"..."}，响应 {"embeddings":[[...]]}。
type HTTPEmbedder struct {
	url       string
	apiKey    string
	model     string
	dimension int
	batchSize int
	client    *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewHTTPEmbedder endpoint 无路径时补 /embed
func NewHTTPEmbedder(cfg *config.EmbeddingConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required for the http provider")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid embedding endpoint %q", cfg.Endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	e := &HTTPEmbedder{
		url:       u.String(),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	if e.model == "" {
		e.model = defaultHTTPModel
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultHTTPBatchSize
	}
	return e, nil
}

// EmbedStrings 按 batchSize 分批请求，结果与 texts 一一对应
func (e *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	ctx, span := tracer.Start(ctx, "embedding.http")
	defer span.End()
	span.SetAttributes(attribute.String("embedding.model", e.model), attribute.Int("embedding.texts", len(texts)))

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]
		vecs, err := e.post(ctx, batch)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("embed texts [%d,%d): %w", start, start+len(batch), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Model: e.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("embedding service returned status=%d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(decoded.Embeddings))
	}
	if e.dimension > 0 {
		for i, v := range decoded.Embeddings {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), e.dimension)
			}
		}
	}
	return decoded.Embeddings, nil
}
