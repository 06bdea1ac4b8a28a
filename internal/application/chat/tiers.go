// Package chat 实现按规程、报告、网页顺序逐层检索的问答引擎。
package chat

import (
	"context"
	"strings"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

// Query 一次问答请求
type Query struct {
	Text string `json:"question"`
	// Category 非空时报告层只检索该类别
	Category entity.Category `json:"category,omitempty"`
}

// TierResult 单层检索结果
type TierResult struct {
	Tier    entity.Tier
	Results []entity.RetrievalResult
	// Skipped 该层未实际执行（报告索引为空等）
	Skipped bool
}

// Tier 级联中的一层
type Tier interface {
	Name() entity.Tier
	Attempt(ctx context.Context, q Query) (*TierResult, error)
	Sufficient(res *TierResult) bool
}

// Searcher 向量索引查询能力
type Searcher interface {
	Query(ctx context.Context, text string, params retrieval.QueryParams) ([]entity.RetrievalResult, error)
}

// ReportSearcher 报告索引，额外需要判断是否为空
type ReportSearcher interface {
	Searcher
	Empty(ctx context.Context) (bool, error)
}

// WebResult 网页检索条目
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearcher 外部网页检索
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// hasHits 阈值过滤后至少一条结果即视为充分
func hasHits(res *TierResult) bool {
	return res != nil && !res.Skipped && len(res.Results) > 0
}

// RegulationTier 规程层，是等级判断的唯一来源
type RegulationTier struct {
	index  Searcher
	params retrieval.QueryParams
}

// NewRegulationTier 创建规程层
func NewRegulationTier(index Searcher, params retrieval.QueryParams) *RegulationTier {
	if params.TopK <= 0 {
		params.TopK = 3
	}
	return &RegulationTier{index: index, params: params}
}

func (t *RegulationTier) Name() entity.Tier { return entity.TierRegulation }

func (t *RegulationTier) Attempt(ctx context.Context, q Query) (*TierResult, error) {
	results, err := t.index.Query(ctx, q.Text, t.params)
	if err != nil {
		return nil, err
	}
	return &TierResult{Tier: entity.TierRegulation, Results: results}, nil
}

func (t *RegulationTier) Sufficient(res *TierResult) bool { return hasHits(res) }

// ReportTier 历史报告层；报告索引为空时跳过（通用模式）
type ReportTier struct {
	index  ReportSearcher
	params retrieval.QueryParams
}

// NewReportTier 创建报告层
func NewReportTier(index ReportSearcher, params retrieval.QueryParams) *ReportTier {
	if params.TopK <= 0 {
		params.TopK = 5
	}
	return &ReportTier{index: index, params: params}
}

func (t *ReportTier) Name() entity.Tier { return entity.TierReport }

func (t *ReportTier) Attempt(ctx context.Context, q Query) (*TierResult, error) {
	empty, err := t.index.Empty(ctx)
	if err != nil {
		logger.Warn(ctx, "report index stats unavailable, querying anyway", "error", err)
	} else if empty {
		return &TierResult{Tier: entity.TierReport, Skipped: true}, nil
	}

	params := t.params
	params.Category = q.Category
	results, err := t.index.Query(ctx, q.Text, params)
	if err != nil {
		return nil, err
	}
	return &TierResult{Tier: entity.TierReport, Results: results}, nil
}

func (t *ReportTier) Sufficient(res *TierResult) bool { return hasHits(res) }

// freshnessKeywords 需要时效信息的提问
var freshnessKeywords = []string{"최신", "최근", "뉴스", "버전", "정책", "공식", "가격"}

// NeedsFreshInfo 问题是否包含时效性关键词
func NeedsFreshInfo(question string) bool {
	for _, k := range freshnessKeywords {
		if strings.Contains(question, k) {
			return true
		}
	}
	return false
}

// WebTier 网页层，只在前两层都不充分时执行
type WebTier struct {
	searcher   WebSearcher
	maxResults int
	// requireKeyword 为 true 时仅对含时效关键词的问题检索网页
	requireKeyword bool
}

// NewWebTier 创建网页层
func NewWebTier(searcher WebSearcher, maxResults int, requireKeyword bool) *WebTier {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &WebTier{searcher: searcher, maxResults: maxResults, requireKeyword: requireKeyword}
}

func (t *WebTier) Name() entity.Tier { return entity.TierWeb }

func (t *WebTier) Attempt(ctx context.Context, q Query) (*TierResult, error) {
	if t.requireKeyword && !NeedsFreshInfo(q.Text) {
		return &TierResult{Tier: entity.TierWeb, Skipped: true}, nil
	}

	items, err := t.searcher.Search(ctx, q.Text, t.maxResults)
	if err != nil {
		metrics.WebSearchTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeWebSearchError, "web search failed")
	}
	if len(items) == 0 {
		metrics.WebSearchTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.WebSearchTotal.WithLabelValues("ok").Inc()
	}

	results := make([]entity.RetrievalResult, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(strings.TrimSpace(it.Title) + "\n" + strings.TrimSpace(it.Snippet))
		if text == "" {
			continue
		}
		source := strings.TrimSpace(it.URL)
		if source == "" {
			source = it.Title
		}
		// 网页结果没有相似度，排在规程和报告之后，不参与阈值比较
		results = append(results, entity.RetrievalResult{
			SourceID: source,
			Text:     text,
			Score:    0,
			Tier:     entity.TierWeb,
		})
	}
	if len(results) > t.maxResults {
		results = results[:t.maxResults]
	}
	return &TierResult{Tier: entity.TierWeb, Results: results}, nil
}

func (t *WebTier) Sufficient(res *TierResult) bool { return hasHits(res) }
