package dto

import (
	"rail-inspection-ai-api/internal/application/retrieval"
)

// IngestRegulationRequest 规程写入请求
type IngestRegulationRequest struct {
	ID       string            `json:"id" binding:"required"`
	SourceID string            `json:"source_id"`
	Text     string            `json:"text" binding:"required"`
	Category string            `json:"category"`
	Metadata map[string]string `json:"metadata"`
}

// IngestResponse 写入结果
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// IndexDocumentsResponse 索引文档列表
type IndexDocumentsResponse struct {
	Documents []retrieval.DocumentInfo `json:"documents"`
}

// ToRetrievalDocument 转换为索引文档
func (r *IngestRegulationRequest) ToRetrievalDocument() retrieval.Document {
	return retrieval.Document{
		ID:       r.ID,
		SourceID: r.SourceID,
		Text:     r.Text,
		Metadata: r.Metadata,
	}
}
