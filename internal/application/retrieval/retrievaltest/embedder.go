// Package retrievaltest 提供检索相关的测试替身。
package retrievaltest

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino/components/embedding"
)

// KeywordEmbedder 以关键词出现次数作为向量维度的确定性 Embedder。
// 不含任何关键词的文本得到零向量，与一切文本相似度为 0。
type KeywordEmbedder struct {
	Vocab []string
	Err   error
	calls atomic.Int64
}

// NewKeywordEmbedder 创建关键词 Embedder
func NewKeywordEmbedder(vocab ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Vocab: vocab}
}

// EmbedStrings 实现 embedding.Embedder
func (e *KeywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec := make([]float64, len(e.Vocab))
		for d, w := range e.Vocab {
			vec[d] = float64(strings.Count(t, w))
		}
		out[i] = vec
	}
	return out, nil
}

// Calls 调用次数
func (e *KeywordEmbedder) Calls() int64 {
	return e.calls.Load()
}
