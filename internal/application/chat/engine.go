package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

const (
	// WebPrefix 网页来源回答的前缀
	WebPrefix = "[웹 검색 결과] "

	// ExhaustedAnswer 所有层级均无相关内容时的固定回答
	ExhaustedAnswer = "등록된 규정, 점검 보고서 및 웹 검색 결과에서 질문에 답할 근거를 찾지 못했습니다. 담당 부서에 확인해 주세요."

	gradeRedaction = "(등급 판단 불가: 규정 근거 없음)"

	cacheKeyPrefix = "chat:answer:v1:"
)

// Synthesizer 根据选定上下文生成回答
type Synthesizer interface {
	Invoke(ctx context.Context, in *wfmodel.ChatAnswerInput) (string, error)
}

// AnswerCache 读穿缓存，并发相同问题只加载一次
type AnswerCache interface {
	LoadAnswer(ctx context.Context, key string, ttl time.Duration, loader func() (any, error)) ([]byte, error)
}

// GradeCounter 报告等级统计
type GradeCounter interface {
	CountByGrade(ctx context.Context, category entity.Category) ([]repository.GradeCount, error)
}

// Config 引擎参数
type Config struct {
	Model        wfmodel.ModelParams
	ContextRunes int
	CacheTTL     time.Duration
}

// Engine 问答引擎。层级严格按顺序执行，命中充分结果的层级即终止级联。
type Engine struct {
	tiers  []Tier
	synth  Synthesizer
	cache  AnswerCache
	counts GradeCounter
	cfg    Config
}

// NewEngine 创建引擎；web 为 nil 表示未配置网页检索
func NewEngine(regs *RegulationTier, reports *ReportTier, web *WebTier, synth Synthesizer, cfg Config) *Engine {
	if cfg.ContextRunes <= 0 {
		cfg.ContextRunes = 1000
	}
	tiers := []Tier{regs, reports}
	if web != nil {
		tiers = append(tiers, web)
	}
	return &Engine{tiers: tiers, synth: synth, cfg: cfg}
}

// WithCache 启用回答缓存
func (e *Engine) WithCache(cache AnswerCache) *Engine {
	e.cache = cache
	return e
}

// WithGradeCounter 启用等级统计
func (e *Engine) WithGradeCounter(counts GradeCounter) *Engine {
	e.counts = counts
	return e
}

// Ask 回答问题
func (e *Engine) Ask(ctx context.Context, q Query) (*entity.ChatAnswer, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "question is required")
	}
	if e.cache == nil || e.cfg.CacheTTL <= 0 {
		return e.answer(ctx, q)
	}

	var (
		loaded    *entity.ChatAnswer
		loaderErr error
	)
	raw, err := e.cache.LoadAnswer(ctx, cacheKey(q), e.cfg.CacheTTL, func() (any, error) {
		loaded, loaderErr = e.answer(ctx, q)
		return loaded, loaderErr
	})
	switch {
	case loaderErr != nil:
		return nil, loaderErr
	case err != nil:
		metrics.ChatCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "chat cache unavailable, answering directly", "error", err)
		return e.answer(ctx, q)
	case loaded != nil:
		metrics.ChatCacheTotal.WithLabelValues("miss").Inc()
		return loaded, nil
	}

	var out entity.ChatAnswer
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.ChatCacheTotal.WithLabelValues("error").Inc()
		return e.answer(ctx, q)
	}
	metrics.ChatCacheTotal.WithLabelValues("hit").Inc()
	return &out, nil
}

func (e *Engine) answer(ctx context.Context, q Query) (*entity.ChatAnswer, error) {
	ans := &entity.ChatAnswer{Tiers: make([]entity.TierTrace, 0, len(e.tiers))}

	var (
		chosen   *TierResult
		executed int
		failures int
	)
	for _, tier := range e.tiers {
		trace := entity.TierTrace{Tier: tier.Name()}
		res, err := tier.Attempt(ctx, q)
		switch {
		case err != nil:
			failures++
			trace.Attempted = true
			trace.Error = err.Error()
			logger.Warn(ctx, "chat tier failed", "tier", tier.Name(), "error", err)
		case res.Skipped:
		default:
			executed++
			trace.Attempted = true
			trace.Hits = len(res.Results)
			trace.Sufficient = tier.Sufficient(res)
		}
		if trace.Attempted {
			metrics.ChatTierTotal.WithLabelValues(string(tier.Name()), strconv.FormatBool(trace.Sufficient)).Inc()
		}
		ans.Tiers = append(ans.Tiers, trace)
		if trace.Sufficient {
			chosen = res
			break
		}
	}

	if chosen == nil {
		if executed == 0 && failures > 0 {
			return nil, apperrors.New(apperrors.CodeRetrievalFailed, "every retrieval tier failed")
		}
		metrics.ChatAnswerTotal.WithLabelValues("exhausted").Inc()
		ans.AnswerText = ExhaustedAnswer
		ans.Insufficient = true
		ans.CitedRegulationIDs = []string{}
		ans.CitedReportIDs = []string{}
		return ans, nil
	}

	in := &wfmodel.ChatAnswerInput{ModelParams: e.cfg.Model, Question: q.Text}
	block := retrieval.BuildPromptContext(chosen.Results, len(chosen.Results), e.cfg.ContextRunes)
	switch chosen.Tier {
	case entity.TierRegulation:
		in.RegulationContext = block
	case entity.TierReport:
		in.ReportContext = block
	case entity.TierWeb:
		in.WebContext = block
	}

	text, err := e.synth.Invoke(ctx, in)
	if err != nil {
		return nil, err
	}

	ans.CitedRegulationIDs = []string{}
	ans.CitedReportIDs = []string{}
	switch chosen.Tier {
	case entity.TierRegulation:
		ans.CitedRegulationIDs = entity.SourceIDs(chosen.Results)
	case entity.TierReport:
		ans.CitedReportIDs = entity.SourceIDs(chosen.Results)
		text = StripUngroundedGrades(text, groundedGrades(chosen.Results))
	case entity.TierWeb:
		ans.UsedWebSearch = true
		ans.WebSources = entity.SourceIDs(chosen.Results)
		text = StripUngroundedGrades(text, nil)
		if !strings.HasPrefix(text, strings.TrimSpace(WebPrefix)) {
			text = WebPrefix + text
		}
	}
	ans.AnswerText = text

	metrics.ChatAnswerTotal.WithLabelValues(string(chosen.Tier)).Inc()
	logger.Info(ctx, "chat answered",
		"tier", chosen.Tier,
		"citations", len(ans.CitedRegulationIDs)+len(ans.CitedReportIDs)+len(ans.WebSources),
	)
	return ans, nil
}

// Summary 已通过评审的报告按等级统计
func (e *Engine) Summary(ctx context.Context, category entity.Category) ([]repository.GradeCount, error) {
	if e.counts == nil {
		return nil, apperrors.New(apperrors.CodeServiceUnavailable, "document store is not configured")
	}
	counts, err := e.counts.CountByGrade(ctx, category)
	if err != nil {
		return nil, err
	}
	// 补齐缺失等级，按严重程度升序
	byGrade := make(map[entity.RiskGrade]int64, len(counts))
	for _, c := range counts {
		byGrade[c.RiskGrade] += c.Count
	}
	out := make([]repository.GradeCount, 0, len(entity.AllGrades))
	for _, g := range entity.AllGrades {
		out = append(out, repository.GradeCount{RiskGrade: g, Count: byGrade[g]})
	}
	return out, nil
}

// groundedGrades 检索文本和报告元数据中出现过的等级
func groundedGrades(results []entity.RetrievalResult) map[entity.RiskGrade]bool {
	out := make(map[entity.RiskGrade]bool)
	for _, r := range results {
		for _, m := range entity.FindGradeMentions(r.Text) {
			out[m.Grade] = true
		}
		if g, ok := entity.FindReportGrade(r.Text); ok {
			out[g] = true
		}
		if g, err := entity.ParseRiskGrade(r.Metadata["risk_grade"]); err == nil {
			out[g] = true
		}
	}
	return out
}

// StripUngroundedGrades 将不在 allowed 中的等级陈述替换为说明文字
func StripUngroundedGrades(text string, allowed map[entity.RiskGrade]bool) string {
	mentions := entity.FindGradeMentions(text)
	if len(mentions) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range mentions {
		if allowed[m.Grade] {
			continue
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(gradeRedaction)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func cacheKey(q Query) string {
	sum := sha256.Sum256([]byte(string(q.Category) + "\n" + retrieval.CompactOneLine(q.Text)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
