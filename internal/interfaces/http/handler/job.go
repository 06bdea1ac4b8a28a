// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/internal/interfaces/http/dto"
)

// JobHandler 任务处理器
type JobHandler struct {
	jobRepo repository.JobRepository
	docRepo repository.DocumentRepository
}

// NewJobHandler 创建任务处理器
func NewJobHandler(jobRepo repository.JobRepository, docRepo repository.DocumentRepository) *JobHandler {
	return &JobHandler{
		jobRepo: jobRepo,
		docRepo: docRepo,
	}
}

// GetJob 获取任务详情
// @Summary 获取任务详情
// @Description 获取流水线任务的状态与进度
// @Tags Jobs
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/jobs/{jid} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	if h.jobRepo == nil {
		dto.ServiceUnavailable(c, "job store is not configured")
		return
	}
	job, err := h.jobRepo.GetByID(c.Request.Context(), dto.BindJobID(c))
	if err != nil {
		respondError(c, err, "failed to get job")
		return
	}
	if job == nil {
		dto.NotFound(c, "job not found")
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

// ListJobs 分页查询任务
// @Summary 任务列表
// @Tags Jobs
// @Produce json
// @Param status query string false "任务状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /v1/jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.jobRepo == nil {
		dto.ServiceUnavailable(c, "job store is not configured")
		return
	}
	page := dto.BindPage(c)
	result, err := h.jobRepo.List(c.Request.Context(), entity.JobStatus(c.Query("status")), page)
	if err != nil {
		respondError(c, err, "failed to list jobs")
		return
	}
	dto.SuccessWithPage(c, dto.ToJobListResponse(result.Items), dto.PageMetaOf(result))
}

// ListJobDocuments 任务下的全部报告，按批次顺序
// @Summary 任务报告
// @Tags Jobs
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /v1/jobs/{jid}/documents [get]
func (h *JobHandler) ListJobDocuments(c *gin.Context) {
	if h.jobRepo == nil || h.docRepo == nil {
		dto.ServiceUnavailable(c, "job store is not configured")
		return
	}
	ctx := c.Request.Context()
	jobID := dto.BindJobID(c)
	job, err := h.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		respondError(c, err, "failed to get job")
		return
	}
	if job == nil {
		dto.NotFound(c, "job not found")
		return
	}
	docs, err := h.docRepo.ListByJob(ctx, jobID)
	if err != nil {
		respondError(c, err, "failed to list job documents")
		return
	}
	dto.Success(c, dto.ToDocumentListResponse(docs))
}
