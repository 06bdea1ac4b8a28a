package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/application/chat"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/internal/interfaces/http/dto"
)

// ChatEngine 问答引擎
type ChatEngine interface {
	Ask(ctx context.Context, q chat.Query) (*entity.ChatAnswer, error)
	Summary(ctx context.Context, category entity.Category) ([]repository.GradeCount, error)
}

// ChatHandler 问答处理器
type ChatHandler struct {
	engine ChatEngine
}

// NewChatHandler 创建问答处理器
func NewChatHandler(engine ChatEngine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// Ask 问答
// @Summary 规程问答
// @Description 依次检索规程、点检报告与网页并生成回答
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.AskRequest true "问题"
// @Success 200 {object} dto.Response[entity.ChatAnswer]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/chat/ask [post]
func (h *ChatHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	category, ok := parseOptionalCategory(req.Category)
	if !ok {
		dto.BadRequest(c, "unknown category: "+req.Category)
		return
	}
	ans, err := h.engine.Ask(c.Request.Context(), chat.Query{Text: req.Question, Category: category})
	if err != nil {
		respondError(c, err, "failed to answer question")
		return
	}
	dto.Success(c, ans)
}

// Summary 报告等级分布
// @Summary 报告等级统计
// @Tags Reports
// @Produce json
// @Param category query string false "检测类别"
// @Success 200 {object} dto.Response[dto.GradeSummaryResponse]
// @Router /v1/reports/summary [get]
func (h *ChatHandler) Summary(c *gin.Context) {
	raw := c.Query("category")
	category, ok := parseOptionalCategory(raw)
	if !ok {
		dto.BadRequest(c, "unknown category: "+raw)
		return
	}
	counts, err := h.engine.Summary(c.Request.Context(), category)
	if err != nil {
		respondError(c, err, "failed to summarize reports")
		return
	}
	dto.Success(c, dto.ToGradeSummaryResponse(string(category), counts))
}

// parseOptionalCategory 空字符串表示不限类别
func parseOptionalCategory(s string) (entity.Category, bool) {
	if s == "" {
		return "", true
	}
	return entity.ParseCategory(s)
}
