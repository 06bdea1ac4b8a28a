package retrieval

import "rail-inspection-ai-api/internal/domain/entity"

// Document 待写入索引的文档
type Document struct {
	ID string
	// SourceID 为空时使用 ID；规程按节拆分时由 [규정 ID] 覆盖
	SourceID string
	Text     string
	Category entity.Category
	Metadata map[string]string
}

// QueryParams 检索参数
type QueryParams struct {
	TopK      int
	Threshold float64
	// Category 非空时仅检索该类别（报告索引使用）
	Category entity.Category
}

// Validate 校验参数取值
func (p QueryParams) Validate() error {
	if p.TopK <= 0 || p.Threshold < 0 || p.Threshold > 1 {
		return ErrInvalidParams
	}
	return nil
}

// DocumentInfo 已写入文档概览
type DocumentInfo struct {
	DocumentID string   `json:"document_id"`
	SourceIDs  []string `json:"source_ids"`
	Chunks     int      `json:"chunks"`
}

// Stats 命名空间统计
type Stats struct {
	Namespace entity.Namespace `json:"namespace"`
	Documents int              `json:"documents"`
	Sources   int              `json:"sources"`
	Chunks    int              `json:"chunks"`
}
