// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PageMetaOf 由仓储分页结果生成元数据
func PageMetaOf[T any](r *repository.PagedResult[T]) *PageMeta {
	if r == nil {
		return nil
	}
	return &PageMeta{Page: r.Page, PageSize: r.PageSize, Total: r.Total, TotalPages: r.TotalPages}
}

// ErrorDetail 错误详情；error_code 为 pkg/errors 中的业务码
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func respond[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	respond(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 200，附分页元数据
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	respond(c, http.StatusOK, "success", data, meta)
}

// Created 201
func Created[T any](c *gin.Context, data T) {
	respond(c, http.StatusCreated, "created", data, nil)
}

// Accepted 202，异步任务已入队
func Accepted[T any](c *gin.Context, data T) {
	respond(c, http.StatusAccepted, "accepted", data, nil)
}

// NoContent 204
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, status int, code errors.ErrorCode, message, details string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Error:   &ErrorDetail{ErrorCode: string(code), Details: details},
		TraceID: c.GetString("trace_id"),
	})
}

// AppError 按 AppError 的状态码与业务码输出
func AppError(c *gin.Context, err *errors.AppError) {
	fail(c, err.HTTPStatus, err.Code, err.Message, err.Detail)
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, errors.CodeInvalidParam, message, "")
}

// NotFound 404
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, errors.CodeNotFound, message, "")
}

// InternalError 500
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, errors.CodeInternalError, message, "")
}

// ServiceUnavailable 503，所需依赖未启用
func ServiceUnavailable(c *gin.Context, message string) {
	fail(c, http.StatusServiceUnavailable, errors.CodeServiceUnavailable, message, "")
}
