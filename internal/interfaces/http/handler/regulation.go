package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/interfaces/http/dto"
	"rail-inspection-ai-api/pkg/logger"
)

// IndexManager 向量索引维护能力
type IndexManager interface {
	Ingest(ctx context.Context, doc retrieval.Document) (int, error)
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
	Documents(ctx context.Context) ([]retrieval.DocumentInfo, error)
	Stats(ctx context.Context) (*retrieval.Stats, error)
}

// AnswerInvalidator 索引变化后清除已缓存的回答
type AnswerInvalidator interface {
	InvalidateChatAnswers(ctx context.Context) error
}

// RegulationHandler 规程索引处理器
type RegulationHandler struct {
	index IndexManager
	cache AnswerInvalidator
}

// NewRegulationHandler 创建处理器；cache 可为 nil
func NewRegulationHandler(index IndexManager, cache AnswerInvalidator) *RegulationHandler {
	return &RegulationHandler{index: index, cache: cache}
}

// invalidate 缓存失效失败只记日志，TTL 到期后自然淘汰
func (h *RegulationHandler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateChatAnswers(ctx); err != nil {
		logger.Warn(ctx, "invalidate chat answers failed", "error", err.Error())
	}
}

// Ingest 写入规程文档
// @Summary 写入规程
// @Description 按 [규정 ID] 分节切块并写入规程索引，同 ID 重复写入会覆盖
// @Tags Regulations
// @Accept json
// @Produce json
// @Param body body dto.IngestRegulationRequest true "规程文档"
// @Success 201 {object} dto.Response[dto.IngestResponse]
// @Router /v1/regulations [post]
func (h *RegulationHandler) Ingest(c *gin.Context) {
	var req dto.IngestRegulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	category, ok := parseOptionalCategory(req.Category)
	if !ok {
		dto.BadRequest(c, "unknown category: "+req.Category)
		return
	}
	doc := req.ToRetrievalDocument()
	doc.Category = category

	ctx := c.Request.Context()
	n, err := h.index.Ingest(ctx, doc)
	if err != nil {
		respondError(c, err, "failed to ingest regulation")
		return
	}
	h.invalidate(ctx)
	dto.Created(c, &dto.IngestResponse{DocumentID: req.ID, Chunks: n})
}

// List 已写入的规程文档
// @Summary 规程列表
// @Tags Regulations
// @Produce json
// @Success 200 {object} dto.Response[dto.IndexDocumentsResponse]
// @Router /v1/regulations [get]
func (h *RegulationHandler) List(c *gin.Context) {
	docs, err := h.index.Documents(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list regulations")
		return
	}
	dto.Success(c, &dto.IndexDocumentsResponse{Documents: docs})
}

// Stats 规程索引统计
// @Summary 规程索引统计
// @Tags Regulations
// @Produce json
// @Success 200 {object} dto.Response[retrieval.Stats]
// @Router /v1/regulations/stats [get]
func (h *RegulationHandler) Stats(c *gin.Context) {
	stats, err := h.index.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get regulation stats")
		return
	}
	dto.Success(c, stats)
}

// Delete 删除单个规程文档
// @Summary 删除规程
// @Tags Regulations
// @Param rid path string true "文档 ID"
// @Success 204
// @Router /v1/regulations/{rid} [delete]
func (h *RegulationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.index.Delete(ctx, dto.BindRegulationID(c)); err != nil {
		respondError(c, err, "failed to delete regulation")
		return
	}
	h.invalidate(ctx)
	dto.NoContent(c)
}

// Clear 清空规程索引
// @Summary 清空规程索引
// @Tags Regulations
// @Success 204
// @Router /v1/regulations [delete]
func (h *RegulationHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.index.Clear(ctx); err != nil {
		respondError(c, err, "failed to clear regulations")
		return
	}
	h.invalidate(ctx)
	logger.Info(ctx, "regulation index cleared")
	dto.NoContent(c)
}
