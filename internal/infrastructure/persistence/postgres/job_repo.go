package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
)

// JobRepository 流水线任务仓储实现
type JobRepository struct {
	client *Client
}

var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.PipelineJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	if err := r.client.conn(ctx).Create(toJobModel(job)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务；不存在时返回 nil, nil
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.PipelineJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	var m jobModel
	if err := r.client.conn(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return m.toEntity(), nil
}

// MarkRunning 标记任务为运行中
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.MarkRunning")
	defer span.End()

	if err := r.client.conn(ctx).Model(&jobModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(entity.JobStatusRunning),
		"started_at": time.Now(),
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// UpdateProgress 更新任务进度
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress repository.JobProgress) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.UpdateProgress")
	defer span.End()

	if err := r.client.conn(ctx).Model(&jobModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":  progress.Processed,
		"approved":   progress.Approved,
		"unresolved": progress.Unresolved,
		"failed":     progress.Failed,
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// Complete 写入终态与归档位置
func (r *JobRepository) Complete(ctx context.Context, id string, status entity.JobStatus, archiveKey, errMsg string) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Complete")
	defer span.End()

	if err := r.client.conn(ctx).Model(&jobModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       string(status),
		"archive_key":  archiveKey,
		"error":        errMsg,
		"completed_at": time.Now(),
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// List 分页查询任务，status 为空时不过滤
func (r *JobRepository) List(ctx context.Context, status entity.JobStatus, pagination repository.Pagination) (*repository.PagedResult[*entity.PipelineJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.List")
	defer span.End()

	query := r.client.conn(ctx).Model(&jobModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	var models []jobModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PageSize).
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*entity.PipelineJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, models[i].toEntity())
	}
	return repository.NewPagedResult(jobs, total, pagination), nil
}
