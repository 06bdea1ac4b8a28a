package repository

import (
	"context"

	"rail-inspection-ai-api/internal/domain/entity"
)

// JobProgress 任务进度计数
type JobProgress struct {
	Processed  int
	Approved   int
	Unresolved int
	Failed     int
}

// JobRepository 流水线任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.PipelineJob) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.PipelineJob, error)

	// MarkRunning 标记运行中
	MarkRunning(ctx context.Context, id string) error

	// UpdateProgress 更新进度
	UpdateProgress(ctx context.Context, id string, progress JobProgress) error

	// Complete 写入终态与归档位置
	Complete(ctx context.Context, id string, status entity.JobStatus, archiveKey, errMsg string) error

	// List 分页查询任务
	List(ctx context.Context, status entity.JobStatus, pagination Pagination) (*PagedResult[*entity.PipelineJob], error)
}
