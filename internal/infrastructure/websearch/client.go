// Package websearch 提供问答第三层使用的网页检索客户端
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/internal/application/chat"
	"rail-inspection-ai-api/internal/config"
)

var tracer = otel.Tracer("websearch")

// Client 兼容 Tavily 风格接口的检索客户端：
// POST {endpoint} {"api_key","query","max_results"} -> {"results":[{"title","url","content"}]}
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ chat.WebSearcher = (*Client)(nil)

type searchRequest struct {
	APIKey     string `json:"api_key,omitempty"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// NewClient 创建网页检索客户端
func NewClient(cfg *config.WebSearchConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("web search endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Search 执行检索，丢弃没有 URL 的条目
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]chat.WebResult, error) {
	ctx, span := tracer.Start(ctx, "websearch.Search",
		trace.WithAttributes(attribute.Int("max_results", maxResults)))
	defer span.End()

	body, err := json.Marshal(&searchRequest{APIKey: c.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("web search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		span.RecordError(err)
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]chat.WebResult, 0, len(out.Results))
	for _, r := range out.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		results = append(results, chat.WebResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(snippet),
		})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(results)))
	return results, nil
}
