package inspection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

const defaultWorkers = 4

// 批次结果状态
const (
	OutcomeApproved   = "approved"
	OutcomeUnresolved = "unresolved"
	OutcomeDraft      = "draft"
	OutcomeFailed     = "failed"
	OutcomeEmpty      = "empty"
)

// PipelineConfig 流水线参数
type PipelineConfig struct {
	Workers    int
	SkipReview bool
}

// BatchOutcome 单个批次的处理结果，Document 与 Err 可同时存在（如 unresolved）
type BatchOutcome struct {
	Index    int                        `json:"index"`
	FrameID  string                     `json:"frame_id"`
	Document *entity.InspectionDocument `json:"document,omitempty"`
	Rejected []RecordError              `json:"rejected,omitempty"`
	Err      error                      `json:"-"`
}

// Status 结果状态
func (o *BatchOutcome) Status() string {
	if o.Document != nil {
		switch o.Document.ReviewStatus {
		case entity.ReviewStatusApproved:
			return OutcomeApproved
		case entity.ReviewStatusUnresolved:
			return OutcomeUnresolved
		}
		if o.Err != nil {
			return OutcomeFailed
		}
		return OutcomeDraft
	}
	if o.Err != nil {
		return OutcomeFailed
	}
	return OutcomeEmpty
}

// Pipeline 按批次编排生成与评审。批次并发执行，结果按输入顺序返回；
// 单个批次失败不影响其他批次。
type Pipeline struct {
	gen     *Generator
	rev     *Reviewer
	docs    repository.DocumentRepository
	reports ReportIngester
	cfg     PipelineConfig

	pool *ants.Pool
}

// NewPipeline 创建流水线；docs 与 reports 可为 nil
func NewPipeline(gen *Generator, rev *Reviewer, docs repository.DocumentRepository, reports ReportIngester, cfg PipelineConfig) (*Pipeline, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if rev == nil && !cfg.SkipReview {
		return nil, fmt.Errorf("reviewer is required unless review is skipped")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithPanicHandler(func(p any) {
			logger.Error(context.Background(), "pipeline worker panic", fmt.Errorf("%v", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pipeline{gen: gen, rev: rev, docs: docs, reports: reports, cfg: cfg, pool: pool}, nil
}

// Close 释放工作池
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Run 处理全部批次。onDone 在每个批次完成时回调（可为 nil，需自行保证并发安全）。
func (p *Pipeline) Run(ctx context.Context, jobID string, batches []*DecodedBatch, onDone func(BatchOutcome)) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(batches))
	var wg sync.WaitGroup

	for i, in := range batches {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = BatchOutcome{Index: i, Err: apperrors.Newf(apperrors.CodeInternalError, "batch %d panicked: %v", i, r)}
				}
				if onDone != nil {
					onDone(outcomes[i])
				}
			}()
			outcomes[i] = p.process(ctx, jobID, i, in)
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			outcomes[i] = BatchOutcome{Index: i, Err: apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "worker pool rejected batch")}
			if onDone != nil {
				onDone(outcomes[i])
			}
		}
	}

	wg.Wait()
	return outcomes
}

// RunOne 同步处理单个批次
func (p *Pipeline) RunOne(ctx context.Context, in *DecodedBatch) BatchOutcome {
	return p.process(ctx, "", 0, in)
}

func (p *Pipeline) process(ctx context.Context, jobID string, index int, in *DecodedBatch) (out BatchOutcome) {
	start := time.Now()
	out.Index = index
	defer func() {
		status := out.Status()
		metrics.PipelineBatchTotal.WithLabelValues(status).Inc()
		if status != OutcomeEmpty {
			metrics.PipelineBatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if in == nil {
		out.Err = apperrors.New(apperrors.CodeValidationFailed, "batch is nil")
		return out
	}
	out.FrameID = in.Batch.FrameID
	if in.Err != nil {
		logger.Warn(ctx, "frame skipped", "frame_id", in.Batch.FrameID, "error", in.Err.Error())
		out.Err = in.Err
		return out
	}
	out.Rejected = in.Rejected
	if len(in.Rejected) > 0 {
		logger.Warn(ctx, "detection records rejected", "frame_id", in.Batch.FrameID, "rejected", len(in.Rejected))
	}

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if in.Batch.IsEmpty() {
		if len(in.Rejected) > 0 {
			out.Err = apperrors.Newf(apperrors.CodeValidationFailed,
				"frame %s: all %d detections rejected", in.Batch.FrameID, len(in.Rejected))
		}
		return out
	}

	ctx = logger.WithContext(ctx, logger.BatchIDKey, in.Batch.FrameID)
	batch := in.Batch

	doc, err := p.gen.Generate(ctx, &batch)
	if err != nil {
		logger.Error(ctx, "draft generation failed", err, "frame_id", batch.FrameID)
		out.Err = err
		return out
	}
	doc.JobID = jobID
	doc.BatchIndex = index

	if !p.cfg.SkipReview {
		doc, err = p.rev.Review(ctx, doc)
		out.Err = err
	}
	doc.RenderedText = RenderDocument(doc)
	out.Document = doc

	if doc.IsFrozen() {
		metrics.RiskGradeTotal.WithLabelValues(string(doc.RiskGrade), string(doc.Category)).Inc()
	}

	if p.docs != nil {
		if err := p.docs.Save(ctx, doc); err != nil {
			logger.Error(ctx, "persist document failed", err, "serial", doc.Serial)
			if out.Err == nil {
				out.Err = apperrors.Wrap(err, apperrors.CodeDatabaseError, "persist document failed")
			}
		}
	}

	if doc.ReviewStatus == entity.ReviewStatusApproved && p.reports != nil {
		if _, err := p.reports.Ingest(ctx, ReportDocument(doc)); err != nil {
			logger.Warn(ctx, "report index ingest failed", "serial", doc.Serial, "error", err.Error())
		}
	}
	return out
}

// ReportDocument 将已通过评审的文档转换为报告索引文档
func ReportDocument(doc *entity.InspectionDocument) retrieval.Document {
	text := doc.RenderedText
	if text == "" {
		text = RenderDocument(doc)
	}
	meta := map[string]string{
		"serial":     doc.Serial,
		"category":   string(doc.Category),
		"frame":      doc.Batch.FrameID,
		"risk_grade": string(doc.RiskGrade),
	}
	if region := regionOf(&doc.Batch); region != "" {
		meta["region"] = region
	}
	return retrieval.Document{
		ID:       doc.ID,
		SourceID: doc.Serial,
		Text:     text,
		Category: doc.Category,
		Metadata: meta,
	}
}

func regionOf(b *entity.DetectionBatch) string {
	switch {
	case b.Route != "" && b.Location != "":
		return b.Route + " " + b.Location
	case b.Route != "":
		return b.Route
	}
	return b.Location
}
