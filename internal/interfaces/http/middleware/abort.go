package middleware

import (
	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/interfaces/http/dto"
	"rail-inspection-ai-api/pkg/errors"
)

// abort 以统一错误结构终止请求
func abort(c *gin.Context, status int, code errors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Code:    status,
		Message: msg,
		Error:   &dto.ErrorDetail{ErrorCode: string(code)},
		TraceID: c.GetString("trace_id"),
	})
}

// isInfraPath 探活与指标路径，不计入追踪与业务指标
func isInfraPath(path string) bool {
	for _, p := range DefaultSkipPaths {
		if path == p {
			return true
		}
	}
	return false
}
