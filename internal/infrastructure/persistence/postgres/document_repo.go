// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
)

// DocumentRepository 点检报告仓储实现
type DocumentRepository struct {
	client *Client
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository 创建报告仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Save 写入或覆盖文档
func (r *DocumentRepository) Save(ctx context.Context, doc *entity.InspectionDocument) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Save")
	defer span.End()

	m, err := toDocumentModel(doc)
	if err != nil {
		return err
	}
	if err := r.client.conn(ctx).Save(m).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取文档；不存在时返回 nil, nil
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.InspectionDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	return r.first(ctx, "id = ?", id)
}

// GetBySerial 根据报告编号获取文档
func (r *DocumentRepository) GetBySerial(ctx context.Context, serial string) (*entity.InspectionDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetBySerial")
	defer span.End()

	return r.first(ctx, "serial = ?", serial)
}

func (r *DocumentRepository) first(ctx context.Context, cond string, arg any) (*entity.InspectionDocument, error) {
	var m documentModel
	if err := r.client.conn(ctx).First(&m, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return m.toEntity()
}

// List 分页查询，按创建时间倒序
func (r *DocumentRepository) List(ctx context.Context, filter *repository.DocumentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.InspectionDocument], error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	query := r.client.conn(ctx).Model(&documentModel{})
	if filter != nil {
		if filter.JobID != "" {
			query = query.Where("job_id = ?", filter.JobID)
		}
		if filter.Category != "" {
			query = query.Where("category = ?", string(filter.Category))
		}
		if filter.RiskGrade != "" {
			query = query.Where("risk_grade = ?", string(filter.RiskGrade))
		}
		if filter.ReviewStatus != "" {
			query = query.Where("review_status = ?", string(filter.ReviewStatus))
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var models []documentModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PageSize).
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs, err := toDocuments(models)
	if err != nil {
		return nil, err
	}
	return repository.NewPagedResult(docs, total, pagination), nil
}

// ListByJob 按批次顺序返回任务下的全部文档
func (r *DocumentRepository) ListByJob(ctx context.Context, jobID string) ([]*entity.InspectionDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListByJob")
	defer span.End()

	var models []documentModel
	if err := r.client.conn(ctx).
		Where("job_id = ?", jobID).
		Order("batch_index ASC").
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list job documents: %w", err)
	}
	return toDocuments(models)
}

// CountByGrade 按风险等级统计已通过评审的文档
func (r *DocumentRepository) CountByGrade(ctx context.Context, category entity.Category) ([]repository.GradeCount, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.CountByGrade")
	defer span.End()

	query := r.client.conn(ctx).Model(&documentModel{}).
		Select("risk_grade, COUNT(*) AS count").
		Where("review_status = ?", string(entity.ReviewStatusApproved))
	if category != "" {
		query = query.Where("category = ?", string(category))
	}

	var rows []struct {
		RiskGrade string
		Count     int64
	}
	if err := query.Group("risk_grade").Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents by grade: %w", err)
	}

	out := make([]repository.GradeCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, repository.GradeCount{RiskGrade: entity.RiskGrade(row.RiskGrade), Count: row.Count})
	}
	return out, nil
}

func toDocuments(models []documentModel) ([]*entity.InspectionDocument, error) {
	docs := make([]*entity.InspectionDocument, 0, len(models))
	for i := range models {
		d, err := models[i].toEntity()
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}
