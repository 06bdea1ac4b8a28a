package main

import (
	"context"
	"fmt"

	"rail-inspection-ai-api/internal/application/inspection"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/infrastructure/messaging"
	"rail-inspection-ai-api/pkg/logger"
)

// jobExecutor 执行已创建的任务
type jobExecutor interface {
	Execute(ctx context.Context, job *entity.PipelineJob, batches []*inspection.DecodedBatch) (*inspection.JobResult, error)
	Fail(ctx context.Context, jobID string, cause error)
}

// jobLoader 读取任务记录
type jobLoader interface {
	GetByID(ctx context.Context, id string) (*entity.PipelineJob, error)
}

// newInspectionJobHandler 解析消息并执行任务。
// 消息体或帧无法解析、任务不存在时返回 ErrPermanent，直接进入死信队列；
// 已结束的任务（重复投递）直接确认。
func newInspectionJobHandler(exec jobExecutor, jobs jobLoader) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.InspectionJobMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		ctx = logger.WithContext(ctx, logger.JobIDKey, payload.JobID)

		job, err := jobs.GetByID(ctx, payload.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %s not found: %w", payload.JobID, messaging.ErrPermanent)
		}
		switch job.Status {
		case entity.JobStatusCompleted, entity.JobStatusFailed:
			logger.Info(ctx, "job already finished, skipping", "status", string(job.Status))
			return nil
		}

		batches, err := inspection.DecodeFrames(payload.Frames, entity.Category(payload.Category))
		if err != nil {
			exec.Fail(ctx, job.ID, err)
			return fmt.Errorf("decode frames: %v: %w", err, messaging.ErrPermanent)
		}

		_, err = exec.Execute(ctx, job, batches)
		return err
	}
}
