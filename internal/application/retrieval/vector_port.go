package retrieval

import (
	"context"

	"rail-inspection-ai-api/internal/domain/entity"
)

// VectorStore 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（Milvus 或内存）。
type VectorStore interface {
	Ensure(ctx context.Context, ns entity.Namespace) error
	Insert(ctx context.Context, ns entity.Namespace, chunks []*Chunk) error
	DeleteByDocument(ctx context.Context, ns entity.Namespace, documentID string) error
	Search(ctx context.Context, ns entity.Namespace, req *SearchRequest) ([]*ScoredChunk, error)
	Clear(ctx context.Context, ns entity.Namespace) error
	Documents(ctx context.Context, ns entity.Namespace) ([]DocumentInfo, error)
}

// Chunk 向量库中的一个分片
type Chunk struct {
	ID         string
	DocumentID string
	SourceID   string
	Category   entity.Category
	Text       string
	Metadata   map[string]string
	// Seq 写入序号，用于同分排序
	Seq    int64
	Vector []float32
}

// SearchRequest 向量检索请求
type SearchRequest struct {
	Vector   []float32
	Limit    int
	Category entity.Category
}

// ScoredChunk 检索命中，Score 为余弦相似度（未截断）
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}
