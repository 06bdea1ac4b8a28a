package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/internal/application/retrieval"
	domain "rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/pkg/metrics"
)

// documentsQueryLimit Milvus 单次 Query 上限
const documentsQueryLimit = 16384

// Store 基于 Milvus 的 retrieval.VectorStore 实现
type Store struct {
	client *Client
	dim    int

	mu      sync.Mutex
	ensured map[domain.Namespace]bool
}

var _ retrieval.VectorStore = (*Store)(nil)

// NewStore 创建向量存储；dim 为嵌入维度
func NewStore(client *Client, dim int) *Store {
	return &Store{client: client, dim: dim, ensured: make(map[domain.Namespace]bool)}
}

func (s *Store) check() error {
	if s == nil || s.client == nil || s.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// Ensure 集合不存在时创建集合与 HNSW 索引，并加载到内存
func (s *Store) Ensure(ctx context.Context, ns domain.Namespace) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[ns] {
		return nil
	}

	name := s.client.collection(ns)
	ctx, span := tracer.Start(ctx, "milvus.Ensure",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	has, err := s.client.hasCollection(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		if err := s.client.milvus.CreateCollection(ctx, ChunksSchema(name, s.dim), entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := s.client.hnswIndex()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := s.client.milvus.CreateIndex(ctx, name, fieldVector, idx, false); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.client.loadCollection(ctx, name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	s.ensured[ns] = true
	return nil
}

// Insert 以列式写入分片
func (s *Store) Insert(ctx context.Context, ns domain.Namespace, chunks []*retrieval.Chunk) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	name := s.client.collection(ns)
	ctx, span := tracer.Start(ctx, "milvus.Insert",
		trace.WithAttributes(
			attribute.String("collection", name),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	n := len(chunks)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	docIDs := make([]string, n)
	sourceIDs := make([]string, n)
	categories := make([]string, n)
	texts := make([]string, n)
	metas := make([]string, n)
	seqs := make([]int64, n)

	for i, c := range chunks {
		if len(c.Vector) != s.dim {
			return fmt.Errorf("chunk %s: vector dimension %d, collection expects %d", c.ID, len(c.Vector), s.dim)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %s: %w", c.ID, err)
		}
		ids[i] = c.ID
		vectors[i] = c.Vector
		docIDs[i] = c.DocumentID
		sourceIDs[i] = c.SourceID
		categories[i] = string(c.Category)
		texts[i] = c.Text
		metas[i] = string(meta)
		seqs[i] = c.Seq
	}

	_, err := s.client.milvus.Insert(ctx, name, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, s.dim, vectors),
		entity.NewColumnVarChar(fieldDocumentID, docIDs),
		entity.NewColumnVarChar(fieldSourceID, sourceIDs),
		entity.NewColumnVarChar(fieldCategory, categories),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldMetadata, metas),
		entity.NewColumnInt64(fieldSeq, seqs),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// DeleteByDocument 删除文档的全部分片
func (s *Store) DeleteByDocument(ctx context.Context, ns domain.Namespace, documentID string) error {
	if err := s.check(); err != nil {
		return err
	}
	name := s.client.collection(ns)
	ctx, span := tracer.Start(ctx, "milvus.DeleteByDocument",
		trace.WithAttributes(
			attribute.String("collection", name),
			attribute.String("document_id", documentID),
		))
	defer span.End()

	expr := fmt.Sprintf(`%s == %s`, fieldDocumentID, quote(documentID))
	if err := s.client.milvus.Delete(ctx, name, "", expr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Search 余弦相似度检索；Category 非空时按分类过滤
func (s *Store) Search(ctx context.Context, ns domain.Namespace, req *retrieval.SearchRequest) ([]*retrieval.ScoredChunk, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	name := s.client.collection(ns)
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", name),
			attribute.Int("top_k", req.Limit),
		))
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		metrics.MilvusSearchTotal.WithLabelValues(name, status).Inc()
	}()

	filter := ""
	if req.Category != "" {
		filter = fmt.Sprintf(`%s == %s`, fieldCategory, quote(string(req.Category)))
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.client.searchEf(req.Limit))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := s.client.milvus.Search(ctx,
		name,
		nil,
		filter,
		outputFields,
		[]entity.Vector{entity.FloatVector(req.Vector)},
		fieldVector,
		entity.COSINE,
		req.Limit,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*retrieval.ScoredChunk
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			out = append(out, &retrieval.ScoredChunk{
				Chunk: chunkAt(result.Fields, i),
				Score: float64(result.Scores[i]),
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Chunk.Seq < out[b].Chunk.Seq
	})

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// Clear 删除整个集合，下次 Ensure 时重建
func (s *Store) Clear(ctx context.Context, ns domain.Namespace) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.client.collection(ns)
	has, err := s.client.hasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		if err := s.client.dropCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	delete(s.ensured, ns)
	return nil
}

// Documents 按文档聚合分片数与来源编号
func (s *Store) Documents(ctx context.Context, ns domain.Namespace) ([]retrieval.DocumentInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	name := s.client.collection(ns)
	ctx, span := tracer.Start(ctx, "milvus.Documents",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	rs, err := s.client.milvus.Query(ctx,
		name,
		nil,
		fieldSeq+" >= 0",
		[]string{fieldDocumentID, fieldSourceID},
		client.WithLimit(documentsQueryLimit),
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	docCol, _ := rs.GetColumn(fieldDocumentID).(*entity.ColumnVarChar)
	srcCol, _ := rs.GetColumn(fieldSourceID).(*entity.ColumnVarChar)
	if docCol == nil {
		return []retrieval.DocumentInfo{}, nil
	}

	byDoc := make(map[string]*retrieval.DocumentInfo)
	var order []string
	for i, docID := range docCol.Data() {
		info := byDoc[docID]
		if info == nil {
			info = &retrieval.DocumentInfo{DocumentID: docID}
			byDoc[docID] = info
			order = append(order, docID)
		}
		info.Chunks++
		if srcCol != nil && i < srcCol.Len() {
			src := srcCol.Data()[i]
			if !containsString(info.SourceIDs, src) {
				info.SourceIDs = append(info.SourceIDs, src)
			}
		}
	}

	out := make([]retrieval.DocumentInfo, 0, len(order))
	for _, id := range order {
		info := byDoc[id]
		sort.Strings(info.SourceIDs)
		out = append(out, *info)
	}
	return out, nil
}

// chunkAt 从结果列中取第 i 行
func chunkAt(fields client.ResultSet, i int) *retrieval.Chunk {
	c := &retrieval.Chunk{}
	if col, ok := fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
		c.ID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldDocumentID).(*entity.ColumnVarChar); ok {
		c.DocumentID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldSourceID).(*entity.ColumnVarChar); ok {
		c.SourceID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldCategory).(*entity.ColumnVarChar); ok {
		c.Category = domain.Category(col.Data()[i])
	}
	if col, ok := fields.GetColumn(fieldText).(*entity.ColumnVarChar); ok {
		c.Text = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldMetadata).(*entity.ColumnVarChar); ok {
		c.Metadata = decodeMetadata(col.Data()[i])
	}
	if col, ok := fields.GetColumn(fieldSeq).(*entity.ColumnInt64); ok {
		c.Seq = col.Data()[i]
	}
	return c
}

func decodeMetadata(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// quote 生成 Milvus 表达式中的字符串字面量
func quote(s string) string {
	return strconv.Quote(s)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
