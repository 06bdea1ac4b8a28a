// Package errors 定义业务错误码及其 HTTP 状态映射
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 业务错误码，按首位数字分组
type ErrorCode string

const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证授权错误 (2xxx)
	CodeTokenExpired     ErrorCode = "2001"
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodePermissionDenied ErrorCode = "2004"

	// 资源错误 (3xxx)
	CodeDocumentNotFound   ErrorCode = "3001"
	CodeJobNotFound        ErrorCode = "3002"
	CodeRegulationNotFound ErrorCode = "3003"

	// 业务错误 (4xxx)
	CodeGenerationFailed   ErrorCode = "4001"
	CodeValidationFailed   ErrorCode = "4002"
	CodeRetrievalFailed    ErrorCode = "4003"
	CodeLLMCallFailed      ErrorCode = "4005"
	CodeEmbeddingFailed    ErrorCode = "4006"
	CodeReviewLoopExceeded ErrorCode = "4007"
	CodeCascadeExhausted   ErrorCode = "4008"

	// 外部服务错误 (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeVectorDBError    ErrorCode = "5003"
	CodeStorageError     ErrorCode = "5004"
	CodeLLMProviderError ErrorCode = "5005"
	CodeWebSearchError   ErrorCode = "5006"
	CodeMessagingError   ErrorCode = "5007"
)

// AppError 携带业务码的错误。Message 面向调用方，Detail 与 Err 用于定位问题。
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 返回附带详情的副本
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回附带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusOf(code)}
}

func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 以业务码包装底层错误；err 为 nil 时等同 New
func Wrap(err error, code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Err = err
	return e
}

// httpStatus 未列出的错误码按 500 处理
var httpStatus = map[ErrorCode]int{
	CodeSuccess:            http.StatusOK,
	CodeInvalidParam:       http.StatusBadRequest,
	CodeValidationFailed:   http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeTokenExpired:       http.StatusUnauthorized,
	CodeTokenInvalid:       http.StatusUnauthorized,
	CodeTokenMissing:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodePermissionDenied:   http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeDocumentNotFound:   http.StatusNotFound,
	CodeJobNotFound:        http.StatusNotFound,
	CodeRegulationNotFound: http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeReviewLoopExceeded: http.StatusUnprocessableEntity,
	CodeCascadeExhausted:   http.StatusUnprocessableEntity,
	CodeTooManyRequests:    http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeMessagingError:     http.StatusServiceUnavailable,
	CodeLLMProviderError:   http.StatusBadGateway,
	CodeWebSearchError:     http.StatusBadGateway,
	CodeVectorDBError:      http.StatusBadGateway,
}

// StatusOf 业务码对应的 HTTP 状态码
func StatusOf(code ErrorCode) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 取错误链中的 AppError；不存在时包装为 CodeUnknown
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// HasCode 错误链中最外层 AppError 的业务码是否为 code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
