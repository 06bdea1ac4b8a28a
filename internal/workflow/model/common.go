// Package model 定义工作流输入输出结构。
package model

import "github.com/cloudwego/eino/schema"

// ModelParams 单次调用的模型选择与采样参数
type ModelParams struct {
	Provider    string
	Model       string
	Temperature *float32
	MaxTokens   *int
}

// LLMUsageMeta 调用结束后的用量信息
type LLMUsageMeta struct {
	Provider         string `json:"provider,omitempty"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// UsageFromMessage 从模型响应中读取用量
func UsageFromMessage(provider string, msg *schema.Message) LLMUsageMeta {
	meta := LLMUsageMeta{Provider: provider}
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return meta
	}
	meta.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
	meta.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
	return meta
}
