// Package service 放置跨层共享的领域约定。
package service

import (
	"context"
	"strings"
)

// LLM 调用所属工作流，作为指标与追踪标签
const (
	WorkflowInspectionDraft  = "inspection_draft"
	WorkflowInspectionReview = "inspection_review"
	WorkflowChatAnswer       = "chat_answer"
)

const unknownLabel = "unknown"

type llmCallKey struct{}

// llmCall 一次模型调用的标签，由链路写入、eino 回调读取
type llmCall struct {
	workflow string
	provider string
}

// WithWorkflowProvider 标记后续模型调用的工作流与提供商；空值沿用 ctx 中已有的标签
func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	call := callFrom(ctx)
	if w := strings.TrimSpace(workflow); w != "" {
		call.workflow = w
	}
	if p := strings.TrimSpace(provider); p != "" {
		call.provider = p
	}
	return context.WithValue(ctx, llmCallKey{}, call)
}

func callFrom(ctx context.Context) llmCall {
	if ctx == nil {
		return llmCall{}
	}
	call, _ := ctx.Value(llmCallKey{}).(llmCall)
	return call
}

func WorkflowFromContext(ctx context.Context) string {
	return orUnknown(callFrom(ctx).workflow)
}

// ProviderFromContext 未指定提供商（走默认）时为 unknown
func ProviderFromContext(ctx context.Context) string {
	return orUnknown(callFrom(ctx).provider)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownLabel
	}
	return s
}
