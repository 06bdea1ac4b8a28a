package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"rail-inspection-ai-api/internal/domain/entity"
)

// MemoryStore 进程内 VectorStore，用于 vector.backend=memory 与测试。
// 暴力余弦检索，不持久化。
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[entity.Namespace]map[string]*Chunk
}

// NewMemoryStore 创建内存向量库
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[entity.Namespace]map[string]*Chunk)}
}

func (s *MemoryStore) Ensure(_ context.Context, ns entity.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[ns] == nil {
		s.chunks[ns] = make(map[string]*Chunk)
	}
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, ns entity.Namespace, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.chunks[ns]
	if m == nil {
		m = make(map[string]*Chunk)
		s.chunks[ns] = m
	}
	for _, c := range chunks {
		cp := *c
		m[c.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(_ context.Context, ns entity.Namespace, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks[ns] {
		if c.DocumentID == documentID {
			delete(s.chunks[ns], id)
		}
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, ns entity.Namespace, req *SearchRequest) ([]*ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ScoredChunk, 0, len(s.chunks[ns]))
	for _, c := range s.chunks[ns] {
		if req.Category != "" && c.Category != req.Category {
			continue
		}
		cp := *c
		out = append(out, &ScoredChunk{Chunk: &cp, Score: cosine(req.Vector, c.Vector)})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Chunk.Seq < out[b].Chunk.Seq
	})
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, ns entity.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, ns)
	return nil
}

func (s *MemoryStore) Documents(_ context.Context, ns entity.Namespace) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDoc := make(map[string]*DocumentInfo)
	for _, c := range s.chunks[ns] {
		info := byDoc[c.DocumentID]
		if info == nil {
			info = &DocumentInfo{DocumentID: c.DocumentID}
			byDoc[c.DocumentID] = info
		}
		info.Chunks++
		if !containsString(info.SourceIDs, c.SourceID) {
			info.SourceIDs = append(info.SourceIDs, c.SourceID)
		}
	}
	out := make([]DocumentInfo, 0, len(byDoc))
	for _, info := range byDoc {
		sort.Strings(info.SourceIDs)
		out = append(out, *info)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
