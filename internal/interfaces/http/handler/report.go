package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/internal/interfaces/http/dto"
)

// ReportHandler 点检报告查询处理器
type ReportHandler struct {
	docRepo repository.DocumentRepository
	index   IndexManager
}

// NewReportHandler 创建处理器；index 为报告向量索引，可为 nil
func NewReportHandler(docRepo repository.DocumentRepository, index IndexManager) *ReportHandler {
	return &ReportHandler{docRepo: docRepo, index: index}
}

// List 分页查询报告
// @Summary 报告列表
// @Tags Reports
// @Produce json
// @Param job_id query string false "任务 ID"
// @Param category query string false "检测类别"
// @Param risk_grade query string false "风险等级"
// @Param review_status query string false "评审状态"
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /v1/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	if h.docRepo == nil {
		dto.ServiceUnavailable(c, "document store is not configured")
		return
	}
	var q dto.DocumentListFilter
	if err := c.ShouldBindQuery(&q); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	category, ok := parseOptionalCategory(q.Category)
	if !ok {
		dto.BadRequest(c, "unknown category: "+q.Category)
		return
	}
	filter := &repository.DocumentFilter{
		JobID:        q.JobID,
		Category:     category,
		ReviewStatus: entity.ReviewStatus(q.ReviewStatus),
	}
	if q.RiskGrade != "" {
		grade, err := entity.ParseRiskGrade(q.RiskGrade)
		if err != nil {
			dto.BadRequest(c, "unknown risk grade: "+q.RiskGrade)
			return
		}
		filter.RiskGrade = grade
	}

	page := dto.BindPage(c)
	result, err := h.docRepo.List(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err, "failed to list reports")
		return
	}
	dto.SuccessWithPage(c, dto.ToDocumentListResponse(result.Items), dto.PageMetaOf(result))
}

// Get 按报告编号或 ID 获取报告
// @Summary 获取报告
// @Tags Reports
// @Produce json
// @Param did path string true "报告编号 (RPT-...) 或 ID"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/reports/{did} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	if h.docRepo == nil {
		dto.ServiceUnavailable(c, "document store is not configured")
		return
	}
	ctx := c.Request.Context()
	id := dto.BindDocumentID(c)

	var (
		doc *entity.InspectionDocument
		err error
	)
	if strings.HasPrefix(id, "RPT-") {
		doc, err = h.docRepo.GetBySerial(ctx, id)
	} else {
		doc, err = h.docRepo.GetByID(ctx, id)
	}
	if err != nil {
		respondError(c, err, "failed to get report")
		return
	}
	if doc == nil {
		dto.NotFound(c, "report not found")
		return
	}
	dto.Success(c, dto.ToDocumentResponse(doc))
}

// IndexStats 报告向量索引统计
// @Summary 报告索引统计
// @Tags Reports
// @Produce json
// @Success 200 {object} dto.Response[retrieval.Stats]
// @Router /v1/reports/index/stats [get]
func (h *ReportHandler) IndexStats(c *gin.Context) {
	if h.index == nil {
		dto.ServiceUnavailable(c, "report index is not configured")
		return
	}
	stats, err := h.index.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get report index stats")
		return
	}
	dto.Success(c, stats)
}
