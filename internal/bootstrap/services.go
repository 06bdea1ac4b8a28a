package bootstrap

import (
	"context"
	"fmt"

	"rail-inspection-ai-api/internal/application/chat"
	"rail-inspection-ai-api/internal/application/inspection"
	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/application/retry"
	"rail-inspection-ai-api/internal/config"
	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/internal/infrastructure/llm"
	"rail-inspection-ai-api/internal/infrastructure/messaging"
	"rail-inspection-ai-api/internal/infrastructure/persistence/postgres"
	"rail-inspection-ai-api/internal/infrastructure/persistence/redis"
	"rail-inspection-ai-api/internal/infrastructure/storage"
	"rail-inspection-ai-api/internal/infrastructure/websearch"
	"rail-inspection-ai-api/internal/workflow/chain"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	"rail-inspection-ai-api/pkg/logger"
)

// Services 应用服务容器；依赖未启用时对应字段为 nil
type Services struct {
	Regulations *retrieval.Index
	Reports     *retrieval.Index
	Pipeline    *inspection.Pipeline
	Inspection  *inspection.Service
	Chat        *chat.Engine

	Documents   repository.DocumentRepository
	Jobs        repository.JobRepository
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	Producer    *messaging.Producer
}

// Close 释放工作池
func (s *Services) Close() {
	if s.Pipeline != nil {
		s.Pipeline.Close()
	}
}

// NewServices 在基础设施之上组装索引、流水线与问答引擎
func NewServices(ctx context.Context, cfg *config.Config, infra *Infra) (*Services, error) {
	svc := &Services{
		Regulations: ProvideRegulationIndex(cfg, infra),
		Reports:     ProvideReportIndex(cfg, infra),
	}

	if infra.Postgres != nil {
		svc.Documents = postgres.NewDocumentRepository(infra.Postgres)
		svc.Jobs = postgres.NewJobRepository(infra.Postgres)
	}

	var limiter llm.Limiter
	if infra.Redis != nil {
		svc.Cache = redis.NewCache(infra.Redis)
		svc.RateLimiter = redis.NewRateLimiter(infra.Redis)
		svc.Producer = messaging.NewProducer(infra.Redis.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
		limiter = svc.RateLimiter
	}
	factory := llm.NewEinoFactory(&cfg.LLM, limiter)

	pipeline, err := ProvidePipeline(cfg, factory, svc.Regulations, svc.Reports, svc.Documents)
	if err != nil {
		return nil, err
	}
	svc.Pipeline = pipeline

	archive, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("init report archive: %w", err)
	}
	svc.Inspection = inspection.NewService(pipeline, svc.Jobs, archive)
	if infra.Postgres != nil {
		svc.Inspection.WithTransactor(postgres.NewTxManager(infra.Postgres))
	}

	engine, err := ProvideChatEngine(cfg, factory, svc.Regulations, svc.Reports)
	if err != nil {
		svc.Close()
		return nil, err
	}
	if svc.Cache != nil {
		engine.WithCache(svc.Cache)
	}
	if svc.Documents != nil {
		engine.WithGradeCounter(svc.Documents)
	}
	svc.Chat = engine
	return svc, nil
}

// ProvideRetrievalOptions 切块参数
func ProvideRetrievalOptions(cfg *config.Config) retrieval.Options {
	return retrieval.Options{
		ChunkSize:          cfg.Retrieval.ChunkSize,
		ChunkOverlap:       cfg.Retrieval.ChunkOverlap,
		EmbeddingBatchSize: cfg.Embedding.BatchSize,
	}
}

// ProvideRegulationIndex 规程索引
func ProvideRegulationIndex(cfg *config.Config, infra *Infra) *retrieval.Index {
	return retrieval.NewRegulationIndex(infra.Embedder, infra.Vectors, ProvideRetrievalOptions(cfg))
}

// ProvideReportIndex 报告索引
func ProvideReportIndex(cfg *config.Config, infra *Infra) *retrieval.Index {
	return retrieval.NewReportIndex(infra.Embedder, infra.Vectors, ProvideRetrievalOptions(cfg))
}

// ProvideRetryPolicy 将配置映射为重试策略；未配置时使用默认策略
func ProvideRetryPolicy(cfg *config.InspectionConfig) retry.Policy {
	if cfg.Retry.MaxAttempts <= 0 {
		p := retry.DefaultPolicy()
		p.AttemptTimeout = cfg.CallTimeout
		return p
	}
	return retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		Initial:        cfg.Retry.Backoff.Initial,
		Max:            cfg.Retry.Backoff.Max,
		Multiplier:     cfg.Retry.Backoff.Multiplier,
		AttemptTimeout: cfg.CallTimeout,
	}
}

func queryParams(q config.QueryParams) retrieval.QueryParams {
	return retrieval.QueryParams{TopK: q.TopK, Threshold: q.Threshold}
}

// ProvidePipeline 生成器、评审器与工作池；docs 为 nil 时不落库
func ProvidePipeline(cfg *config.Config, factory *llm.EinoFactory, regs, reports *retrieval.Index, docs repository.DocumentRepository) (*inspection.Pipeline, error) {
	params := wfmodel.ModelParams{Provider: cfg.Inspection.Provider}
	policy := ProvideRetryPolicy(&cfg.Inspection)

	gen := inspection.NewGenerator(regs, chain.NewDraftChain(factory), inspection.GeneratorConfig{
		Query: queryParams(cfg.Retrieval.Regulations),
		Model: params,
		Retry: policy,
	})
	rev := inspection.NewReviewer(regs, chain.NewReviewChain(factory), gen, inspection.ReviewerConfig{
		MaxRevisions: cfg.Inspection.MaxRevisions,
		Query:        queryParams(cfg.Retrieval.Review),
		Model:        params,
		Retry:        policy,
	})

	var ingester inspection.ReportIngester
	if reports.Enabled() {
		ingester = reports
	}
	pipeline, err := inspection.NewPipeline(gen, rev, docs, ingester, inspection.PipelineConfig{
		Workers:    cfg.Inspection.Workers,
		SkipReview: cfg.Inspection.SkipReview,
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return pipeline, nil
}

// ProvideChatEngine 问答引擎；网页检索未启用或未配置时级联只有两层
func ProvideChatEngine(cfg *config.Config, factory *llm.EinoFactory, regs, reports *retrieval.Index) (*chat.Engine, error) {
	var web *chat.WebTier
	if cfg.WebSearch.Enabled {
		client, err := websearch.NewClient(&cfg.WebSearch)
		if err != nil {
			return nil, fmt.Errorf("init web search: %w", err)
		}
		web = chat.NewWebTier(client, cfg.WebSearch.MaxResults, cfg.WebSearch.RequireKeyword)
	} else {
		logger.Info(context.Background(), "web search tier disabled")
	}

	return chat.NewEngine(
		chat.NewRegulationTier(regs, queryParams(cfg.Chat.Regulations)),
		chat.NewReportTier(reports, queryParams(cfg.Chat.Reports)),
		web,
		chain.NewChatChain(factory),
		chat.Config{
			Model:        wfmodel.ModelParams{Provider: cfg.Chat.Provider},
			ContextRunes: cfg.Chat.ContextRunes,
			CacheTTL:     cfg.Chat.CacheTTL,
		},
	), nil
}
