package dto

import (
	"rail-inspection-ai-api/internal/domain/repository"
)

// AskRequest 问答请求
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	Category string `json:"category"`
}

// GradeSummaryResponse 报告等级分布
type GradeSummaryResponse struct {
	Category string                  `json:"category,omitempty"`
	Total    int64                   `json:"total"`
	Grades   []repository.GradeCount `json:"grades"`
}

// ToGradeSummaryResponse 汇总各等级数量
func ToGradeSummaryResponse(category string, counts []repository.GradeCount) *GradeSummaryResponse {
	resp := &GradeSummaryResponse{Category: category, Grades: counts}
	for _, c := range counts {
		resp.Total += c.Count
	}
	return resp
}
