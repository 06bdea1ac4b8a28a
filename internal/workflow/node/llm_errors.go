package node

import "strings"

// 不支持结构化输出参数时各提供商返回的错误片段
var responseFormatHints = [][]string{
	{"response_format"},
	{"response_schema"},
	{"response_mime_type"},
	{"json_schema"},
	{"unknown parameter", "response"},
	{"invalid", "response"},
}

var rateLimitHints = []string{"429", "rate limit", "resource_exhausted", "quota"}

// IsResponseFormatUnsupportedError 模型拒绝结构化输出参数；调用方去掉该参数后重试一次
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range responseFormatHints {
		if containsAll(msg, hint) {
			return true
		}
	}
	return false
}

// IsRateLimitError 上游限流或配额耗尽
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rateLimitHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func containsAll(s string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
