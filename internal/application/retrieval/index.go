// Package retrieval 实现规程索引与报告索引共用的分片、向量化与检索逻辑。
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"rail-inspection-ai-api/internal/domain/entity"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

const (
	defaultChunkSizeRunes    = 500
	defaultChunkOverlapRunes = 200
	defaultEmbeddingBatch    = 32

	// 向量库按余弦分数截取候选，同分排序需要多取一些
	candidateFactor = 3
)

// Options 分片与写入参数
type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	EmbeddingBatchSize int
	// SplitSections 写入前按 [규정 ID] 拆节（规程索引）
	SplitSections bool
}

// Index 单个命名空间上的向量索引。
// 写入（Ingest/Delete/Clear）独占命名空间，查询之间可并发。
type Index struct {
	ns       entity.Namespace
	tier     entity.Tier
	embedder embedding.Embedder
	store    VectorStore
	opts     Options

	mu      sync.RWMutex
	lastSeq int64
	ready   atomic.Bool
}

// NewIndex 创建索引
func NewIndex(ns entity.Namespace, tier entity.Tier, embedder embedding.Embedder, store VectorStore, opts Options) *Index {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSizeRunes
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(defaultChunkOverlapRunes, opts.ChunkSize/2)
	}
	if opts.EmbeddingBatchSize <= 0 {
		opts.EmbeddingBatchSize = defaultEmbeddingBatch
	}
	return &Index{
		ns:       ns,
		tier:     tier,
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

// NewRegulationIndex 规程索引：按节拆分，来源 ID 为规程 ID
func NewRegulationIndex(embedder embedding.Embedder, store VectorStore, opts Options) *Index {
	opts.SplitSections = true
	return NewIndex(entity.NamespaceRegulations, entity.TierRegulation, embedder, store, opts)
}

// NewReportIndex 报告索引：来源 ID 为报告文档 ID
func NewReportIndex(embedder embedding.Embedder, store VectorStore, opts Options) *Index {
	opts.SplitSections = false
	return NewIndex(entity.NamespaceReports, entity.TierReport, embedder, store, opts)
}

// Namespace 命名空间
func (i *Index) Namespace() entity.Namespace { return i.ns }

// Enabled 向量库与 Embedder 均已配置
func (i *Index) Enabled() bool {
	return i != nil && i.embedder != nil && i.store != nil
}

func (i *Index) ensureReady(ctx context.Context) error {
	if !i.Enabled() {
		return ErrVectorDisabled
	}
	if i.ready.Load() {
		return nil
	}
	if err := i.store.Ensure(ctx, i.ns); err != nil {
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to prepare vector namespace")
	}
	i.ready.Store(true)
	return nil
}

// Ingest 分片、向量化并写入文档，返回写入的分片数。
// 同一文档重复写入会先删除旧分片，分片 ID 由文档 ID 和序号决定。
func (i *Index) Ingest(ctx context.Context, doc Document) (int, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return 0, apperrors.New(apperrors.CodeInvalidParam, "document id is required")
	}
	if err := i.ensureReady(ctx); err != nil {
		return 0, err
	}

	chunks := i.buildChunks(doc)
	if len(chunks) > 0 {
		inputs := make([]string, len(chunks))
		for idx, c := range chunks {
			inputs[idx] = c.Text
		}
		vectors, err := i.embedBatch(ctx, inputs)
		if err != nil {
			return 0, err
		}
		for idx := range chunks {
			chunks[idx].Vector = vectors[idx]
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.DeleteByDocument(ctx, i.ns, doc.ID); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to delete previous chunks")
	}
	if len(chunks) == 0 {
		// 空正文只做删除，避免旧分片残留
		return 0, nil
	}
	for _, c := range chunks {
		c.Seq = i.nextSeq()
	}
	if err := i.store.Insert(ctx, i.ns, chunks); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to insert chunks")
	}

	metrics.RetrievalChunksIngested.WithLabelValues(string(i.ns)).Add(float64(len(chunks)))
	logger.Debug(ctx, "document ingested",
		"namespace", i.ns,
		"document_id", doc.ID,
		"chunks", len(chunks),
	)
	return len(chunks), nil
}

// nextSeq 单调递增，跨进程重启依赖时钟保持递增；调用方持有写锁
func (i *Index) nextSeq() int64 {
	seq := time.Now().UnixNano()
	if seq <= i.lastSeq {
		seq = i.lastSeq + 1
	}
	i.lastSeq = seq
	return seq
}

func (i *Index) buildChunks(doc Document) []*Chunk {
	sourceID := strings.TrimSpace(doc.SourceID)
	if sourceID == "" {
		sourceID = doc.ID
	}

	var sections []section
	if i.opts.SplitSections {
		sections = splitSections(doc.Text, sourceID)
	} else if txt := strings.TrimSpace(doc.Text); txt != "" {
		sections = []section{{SourceID: sourceID, Text: txt}}
	}

	out := make([]*Chunk, 0, len(sections))
	n := 0
	for _, sec := range sections {
		fields := extractFields(sec.Text)
		for _, part := range splitByRunes(sec.Text, i.opts.ChunkSize, i.opts.ChunkOverlap) {
			meta := make(map[string]string, len(doc.Metadata)+len(fields))
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			for k, v := range fields {
				meta[k] = v
			}
			out = append(out, &Chunk{
				ID:         chunkID(doc.ID, n),
				DocumentID: doc.ID,
				SourceID:   sec.SourceID,
				Category:   doc.Category,
				Text:       part,
				Metadata:   meta,
			})
			n++
		}
	}
	return out
}

// Query 检索与文本最相似的分片：分数截断到 [0,1]，丢弃低于阈值的结果，
// 按分数降序、同分按写入顺序排序，最多返回 TopK 条。索引为空时返回空结果。
func (i *Index) Query(ctx context.Context, text string, params QueryParams) ([]entity.RetrievalResult, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.RetrievalQueryTotal.WithLabelValues(string(i.ns), status).Inc()
		metrics.RetrievalQueryDuration.WithLabelValues(string(i.ns)).Observe(time.Since(start).Seconds())
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		status = "invalid"
		return nil, ErrEmptyQuery
	}
	if err := params.Validate(); err != nil {
		status = "invalid"
		return nil, fmt.Errorf("%w: top_k=%d threshold=%v", err, params.TopK, params.Threshold)
	}
	if err := i.ensureReady(ctx); err != nil {
		status = "error"
		return nil, err
	}

	vec, err := i.embedQuery(ctx, text)
	if err != nil {
		status = "error"
		return nil, err
	}

	i.mu.RLock()
	hits, err := i.store.Search(ctx, i.ns, &SearchRequest{
		Vector:   vec,
		Limit:    params.TopK * candidateFactor,
		Category: params.Category,
	})
	i.mu.RUnlock()
	if err != nil {
		status = "error"
		return nil, apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "vector search failed")
	}

	results := rank(hits, params, i.tier)
	if len(results) == 0 {
		status = "empty"
	}
	return results, nil
}

// rank 截断、过滤、稳定排序并裁剪
func rank(hits []*ScoredChunk, params QueryParams, tier entity.Tier) []entity.RetrievalResult {
	kept := make([]*ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h == nil || h.Chunk == nil {
			continue
		}
		h.Score = clamp01(h.Score)
		if h.Score < params.Threshold {
			continue
		}
		kept = append(kept, h)
	}
	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].Score != kept[b].Score {
			return kept[a].Score > kept[b].Score
		}
		return kept[a].Chunk.Seq < kept[b].Chunk.Seq
	})
	if len(kept) > params.TopK {
		kept = kept[:params.TopK]
	}

	out := make([]entity.RetrievalResult, 0, len(kept))
	for _, h := range kept {
		out = append(out, entity.RetrievalResult{
			SourceID: h.Chunk.SourceID,
			ChunkID:  h.Chunk.ID,
			Text:     h.Chunk.Text,
			Score:    h.Score,
			Tier:     tier,
			Metadata: h.Chunk.Metadata,
		})
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Delete 删除单个文档的全部分片
func (i *Index) Delete(ctx context.Context, documentID string) error {
	if err := i.ensureReady(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.store.DeleteByDocument(ctx, i.ns, documentID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to delete document chunks")
	}
	return nil
}

// Clear 清空命名空间
func (i *Index) Clear(ctx context.Context) error {
	if !i.Enabled() {
		return ErrVectorDisabled
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.store.Clear(ctx, i.ns); err != nil {
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to clear namespace")
	}
	// 清空后由下一次写入/查询重新创建
	i.ready.Store(false)
	logger.Info(ctx, "namespace cleared", "namespace", i.ns)
	return nil
}

// Documents 列出已写入的文档
func (i *Index) Documents(ctx context.Context) ([]DocumentInfo, error) {
	if err := i.ensureReady(ctx); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	docs, err := i.store.Documents(ctx, i.ns)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to list documents")
	}
	sort.Slice(docs, func(a, b int) bool { return docs[a].DocumentID < docs[b].DocumentID })
	return docs, nil
}

// Stats 命名空间统计
func (i *Index) Stats(ctx context.Context) (*Stats, error) {
	docs, err := i.Documents(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Namespace: i.ns, Documents: len(docs)}
	sources := make(map[string]struct{})
	for _, d := range docs {
		st.Chunks += d.Chunks
		for _, s := range d.SourceIDs {
			sources[s] = struct{}{}
		}
	}
	st.Sources = len(sources)
	return st, nil
}

// Empty 命名空间是否没有任何分片
func (i *Index) Empty(ctx context.Context) (bool, error) {
	st, err := i.Stats(ctx)
	if err != nil {
		return false, err
	}
	return st.Chunks == 0, nil
}

func (i *Index) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := i.embedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "empty embedding result")
	}
	return vecs[0], nil
}

func (i *Index) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.opts.EmbeddingBatchSize {
		end := start + i.opts.EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		v64, err := i.embedder.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding request failed")
		}
		if len(v64) != end-start {
			return nil, apperrors.Newf(apperrors.CodeEmbeddingFailed, "embedding count mismatch: want %d got %d", end-start, len(v64))
		}
		for _, vec := range v64 {
			f32 := make([]float32, len(vec))
			for k, x := range vec {
				f32[k] = float32(x)
			}
			out = append(out, f32)
		}
	}
	return out, nil
}
