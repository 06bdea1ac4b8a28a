package handler

import (
	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/interfaces/http/dto"
	"rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
)

// respondError 将应用错误映射为 HTTP 响应；非 AppError 记日志后返回 500
func respondError(c *gin.Context, err error, fallback string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), fallback, err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), fallback, err)
	dto.InternalError(c, fallback)
}
