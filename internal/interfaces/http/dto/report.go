package dto

import (
	"rail-inspection-ai-api/internal/domain/entity"
)

// DocumentListFilter 报告列表查询参数
type DocumentListFilter struct {
	JobID        string `form:"job_id"`
	Category     string `form:"category"`
	RiskGrade    string `form:"risk_grade"`
	ReviewStatus string `form:"review_status"`
}

// ToDocumentListResponse 转换报告列表
func ToDocumentListResponse(docs []*entity.InspectionDocument) *DocumentListResponse {
	out := &DocumentListResponse{Documents: make([]*DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, ToDocumentResponse(d))
	}
	return out
}
