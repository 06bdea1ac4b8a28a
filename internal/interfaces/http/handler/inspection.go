package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/application/inspection"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/infrastructure/messaging"
	"rail-inspection-ai-api/internal/interfaces/http/dto"
	"rail-inspection-ai-api/internal/interfaces/http/middleware"
	"rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
)

// InspectionRunner 流水线任务服务
type InspectionRunner interface {
	Submit(ctx context.Context, category entity.Category, batchCount int, submittedBy string) (*entity.PipelineJob, error)
	Process(ctx context.Context, category entity.Category, batches []*inspection.DecodedBatch, submittedBy string) (*inspection.JobResult, error)
	Fail(ctx context.Context, jobID string, cause error)
}

// JobPublisher 异步任务投递
type JobPublisher interface {
	PublishInspectionJob(ctx context.Context, job *messaging.InspectionJobMessage) (string, error)
}

// InspectionHandler 点检流水线处理器
type InspectionHandler struct {
	service   InspectionRunner
	publisher JobPublisher
}

// NewInspectionHandler 创建处理器；publisher 为 nil 时不提供异步提交
func NewInspectionHandler(service InspectionRunner, publisher JobPublisher) *InspectionHandler {
	return &InspectionHandler{service: service, publisher: publisher}
}

// decode 校验请求并解析全部帧；frames 不是数组时拒绝，单帧错误留给流水线按批次报告
func (h *InspectionHandler) decode(c *gin.Context) (*dto.InspectionRequest, entity.Category, []*inspection.DecodedBatch, bool) {
	var req dto.InspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return nil, "", nil, false
	}
	category, ok := parseOptionalCategory(req.Category)
	if !ok {
		dto.BadRequest(c, "unknown category: "+req.Category)
		return nil, "", nil, false
	}
	batches, err := inspection.DecodeFrames(req.Frames, category)
	if err != nil {
		respondError(c, err, "failed to decode frames")
		return nil, "", nil, false
	}
	if len(batches) == 0 {
		dto.BadRequest(c, "frames must not be empty")
		return nil, "", nil, false
	}
	return &req, category, batches, true
}

// Run 同步执行流水线
// @Summary 生成点检报告
// @Description 逐帧生成并评审点检报告，按输入顺序返回结果
// @Tags Inspections
// @Accept json
// @Produce json
// @Param body body dto.InspectionRequest true "检测帧"
// @Success 200 {object} dto.Response[dto.InspectionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/inspections [post]
func (h *InspectionHandler) Run(c *gin.Context) {
	_, category, batches, ok := h.decode(c)
	if !ok {
		return
	}
	res, err := h.service.Process(c.Request.Context(), category, batches, middleware.OperatorID(c))
	if err != nil {
		respondError(c, err, "inspection pipeline failed")
		return
	}
	dto.Success(c, dto.ToInspectionResponse(res))
}

// Submit 异步提交流水线任务
// @Summary 异步生成点检报告
// @Description 创建任务并投递到队列，由 worker 执行
// @Tags Inspections
// @Accept json
// @Produce json
// @Param body body dto.InspectionRequest true "检测帧"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/inspections/async [post]
func (h *InspectionHandler) Submit(c *gin.Context) {
	if h.publisher == nil {
		dto.ServiceUnavailable(c, "async pipeline is not configured")
		return
	}
	req, category, batches, ok := h.decode(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	job, err := h.service.Submit(ctx, category, len(batches), middleware.OperatorID(c))
	if err != nil {
		respondError(c, err, "failed to create job")
		return
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)

	if _, err := h.publisher.PublishInspectionJob(ctx, &messaging.InspectionJobMessage{
		JobID:    job.ID,
		Category: string(category),
		Frames:   req.Frames,
	}); err != nil {
		h.service.Fail(ctx, job.ID, err)
		respondError(c, errors.Wrap(err, errors.CodeMessagingError, "failed to enqueue job"), "failed to enqueue job")
		return
	}
	logger.Info(ctx, "inspection job enqueued", "batches", len(batches))
	dto.Accepted(c, dto.ToJobResponse(job))
}
