package inspection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
)

// JobResult 任务执行结果
type JobResult struct {
	Job      *entity.PipelineJob `json:"job"`
	Outcomes []BatchOutcome      `json:"outcomes"`
	Report   *BatchReport        `json:"-"`
}

// Service 以任务为单位运行流水线：记录进度、归档批次报告
type Service struct {
	pipeline *Pipeline
	jobs     repository.JobRepository
	archive  Archiver
	tx       repository.Transactor
	now      func() time.Time
}

// NewService 创建任务服务；jobs 与 archive 可为 nil
func NewService(pipeline *Pipeline, jobs repository.JobRepository, archive Archiver) *Service {
	return &Service{pipeline: pipeline, jobs: jobs, archive: archive, now: time.Now}
}

// WithTransactor 终态计数与状态在同一事务内提交
func (s *Service) WithTransactor(tx repository.Transactor) *Service {
	s.tx = tx
	return s
}

// Submit 创建待执行任务（异步模式下由 worker 执行）
func (s *Service) Submit(ctx context.Context, category entity.Category, batchCount int, submittedBy string) (*entity.PipelineJob, error) {
	job := entity.NewPipelineJob(category, batchCount, submittedBy)
	if s.jobs != nil {
		if err := s.jobs.Create(ctx, job); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "create job failed")
		}
	}
	return job, nil
}

// Process 同步创建并执行任务
func (s *Service) Process(ctx context.Context, category entity.Category, batches []*DecodedBatch, submittedBy string) (*JobResult, error) {
	job, err := s.Submit(ctx, category, len(batches), submittedBy)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, job, batches)
}

// Execute 执行已创建的任务。批次级失败记录在结果中，不作为任务错误返回。
func (s *Service) Execute(ctx context.Context, job *entity.PipelineJob, batches []*DecodedBatch) (*JobResult, error) {
	if job == nil {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "job is nil")
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	started := s.now()
	job.Status = entity.JobStatusRunning
	job.StartedAt = &started
	if s.jobs != nil {
		if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
			logger.Warn(ctx, "mark job running failed", "error", err.Error())
		}
	}
	logger.Info(ctx, "pipeline job started", "batches", len(batches), "category", string(job.Category))

	var mu sync.Mutex
	progress := repository.JobProgress{}
	onDone := func(o BatchOutcome) {
		mu.Lock()
		progress.Processed++
		switch o.Status() {
		case OutcomeApproved:
			progress.Approved++
		case OutcomeUnresolved:
			progress.Unresolved++
		case OutcomeFailed:
			progress.Failed++
		}
		snapshot := progress
		mu.Unlock()

		if s.jobs != nil {
			if err := s.jobs.UpdateProgress(ctx, job.ID, snapshot); err != nil {
				logger.Warn(ctx, "update job progress failed", "error", err.Error())
			}
		}
	}

	outcomes := s.pipeline.Run(ctx, job.ID, batches, onDone)

	job.Processed = progress.Processed
	job.Approved = progress.Approved
	job.Unresolved = progress.Unresolved
	job.Failed = progress.Failed

	finished := s.now()
	report := BuildBatchReport(job, outcomes, finished)
	if s.archive != nil {
		key, err := s.store(ctx, job, report, finished)
		if err != nil {
			logger.Error(ctx, "archive batch report failed", err)
		} else {
			job.ArchiveKey = key
		}
	}

	job.Status = entity.JobStatusCompleted
	if err := ctx.Err(); err != nil {
		job.Status = entity.JobStatusFailed
		job.Error = err.Error()
	}
	job.CompletedAt = &finished
	if s.jobs != nil {
		if err := s.finalize(ctx, job, progress); err != nil {
			logger.Warn(ctx, "complete job failed", "error", err.Error())
		}
	}

	logger.Info(ctx, "pipeline job finished",
		"status", string(job.Status),
		"approved", job.Approved,
		"unresolved", job.Unresolved,
		"failed", job.Failed,
		"duration", finished.Sub(started).String(),
	)
	return &JobResult{Job: job, Outcomes: outcomes, Report: report}, nil
}

// finalize 写入最终进度与终态；任务被取消时仍需落库
func (s *Service) finalize(ctx context.Context, job *entity.PipelineJob, progress repository.JobProgress) error {
	ctx = context.WithoutCancel(ctx)
	write := func(ctx context.Context) error {
		if err := s.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
			return err
		}
		return s.jobs.Complete(ctx, job.ID, job.Status, job.ArchiveKey, job.Error)
	}
	if s.tx == nil {
		return write(ctx)
	}
	return s.tx.WithTransaction(ctx, write)
}

func (s *Service) store(ctx context.Context, job *entity.PipelineJob, report *BatchReport, now time.Time) (string, error) {
	data, err := report.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal batch report: %w", err)
	}
	return s.archive.Put(ctx, ArchiveKey(job, now), data)
}

// Fail 将任务标记为失败（如消息体无法解析）
func (s *Service) Fail(ctx context.Context, jobID string, cause error) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Complete(ctx, jobID, entity.JobStatusFailed, "", cause.Error()); err != nil {
		logger.Warn(ctx, "mark job failed failed", "job_id", jobID, "error", err.Error())
	}
}
