package repository

import (
	"context"

	"rail-inspection-ai-api/internal/domain/entity"
)

// DocumentFilter 报告过滤条件
type DocumentFilter struct {
	JobID        string
	Category     entity.Category
	RiskGrade    entity.RiskGrade
	ReviewStatus entity.ReviewStatus
}

// GradeCount 按等级统计
type GradeCount struct {
	RiskGrade entity.RiskGrade `json:"risk_grade"`
	Count     int64            `json:"count"`
}

// DocumentRepository 点检报告仓储接口
type DocumentRepository interface {
	// Save 写入或覆盖文档（按 ID）
	Save(ctx context.Context, doc *entity.InspectionDocument) error

	// GetByID 根据 ID 获取文档
	GetByID(ctx context.Context, id string) (*entity.InspectionDocument, error)

	// GetBySerial 根据报告编号获取文档
	GetBySerial(ctx context.Context, serial string) (*entity.InspectionDocument, error)

	// List 分页查询，按创建时间倒序
	List(ctx context.Context, filter *DocumentFilter, pagination Pagination) (*PagedResult[*entity.InspectionDocument], error)

	// ListByJob 按批次顺序返回任务下的全部文档
	ListByJob(ctx context.Context, jobID string) ([]*entity.InspectionDocument, error)

	// CountByGrade 按风险等级统计（仅统计已通过评审的文档）
	CountByGrade(ctx context.Context, category entity.Category) ([]GradeCount, error)
}
