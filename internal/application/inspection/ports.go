package inspection

import (
	"context"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
)

// RegulationSearcher 规程检索能力
type RegulationSearcher interface {
	Query(ctx context.Context, text string, params retrieval.QueryParams) ([]entity.RetrievalResult, error)
}

// ReportIngester 已通过评审的报告写入报告索引
type ReportIngester interface {
	Ingest(ctx context.Context, doc retrieval.Document) (int, error)
}

// Drafter 草稿生成模型调用
type Drafter interface {
	Invoke(ctx context.Context, in *wfmodel.DraftInput) (*wfmodel.DraftOutput, error)
}

// Judge 评审模型调用
type Judge interface {
	Invoke(ctx context.Context, in *wfmodel.ReviewInput) (*wfmodel.ReviewVerdict, error)
}

// Archiver 批次报告归档
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}
