// Package eino 注册 Eino 全局回调，为模型与向量化调用上报指标和追踪。
package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/internal/domain/service"
	"rail-inspection-ai-api/pkg/metrics"
)

var einoTracer = otel.Tracer("eino")

// llmCall OnStart 时确定的标签，OnEnd/OnError 沿用，保证成功与失败计入同一组序列
type llmCall struct {
	started  time.Time
	workflow string
	provider string
	model    string
}

type llmCallKey struct{}

func callFromContext(ctx context.Context) llmCall {
	if c, ok := ctx.Value(llmCallKey{}).(llmCall); ok {
		return c
	}
	return llmCall{workflow: service.WorkflowFromContext(ctx), provider: service.ProviderFromContext(ctx)}
}

func (c llmCall) elapsed() float64 {
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started).Seconds()
}

// finish 记录调用结果并结束 span；usage 仅成功时非空
func (c llmCall) finish(ctx context.Context, usage *model.TokenUsage, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(c.workflow, c.provider, c.model, status).Inc()
	if d := c.elapsed(); d > 0 {
		metrics.LLMCallDuration.WithLabelValues(c.workflow, c.provider, c.model).Observe(d)
	}

	span := trace.SpanFromContext(ctx)
	if usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(c.workflow, c.provider, c.model, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(c.workflow, c.provider, c.model, "completion").Add(float64(usage.CompletionTokens))
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
	}
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func runInfoAttrs(info *einocb.RunInfo) []attribute.KeyValue {
	if info == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("eino.node_name", info.Name),
		attribute.String("eino.type", info.Type),
	}
}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			call := llmCall{
				started:  time.Now(),
				workflow: service.WorkflowFromContext(ctx),
				provider: service.ProviderFromContext(ctx),
			}
			if input != nil && input.Config != nil {
				call.model = input.Config.Model
			}
			attrs := append(runInfoAttrs(info),
				attribute.String("eino.workflow", call.workflow),
				attribute.String("llm.provider", call.provider),
				attribute.String("llm.model", call.model),
			)
			ctx, _ = einoTracer.Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return context.WithValue(ctx, llmCallKey{}, call)
		},
		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			call := callFromContext(ctx)
			var usage *model.TokenUsage
			if output != nil {
				// 请求未带模型名时以响应为准
				if call.model == "" && output.Config != nil {
					call.model = output.Config.Model
				}
				usage = output.TokenUsage
			}
			call.finish(ctx, usage, nil)
			return ctx
		},
		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			callFromContext(ctx).finish(ctx, nil, err)
			return ctx
		},
	}
}

// newEmbeddingCallbackHandler 向量化只做追踪
func newEmbeddingCallbackHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			attrs := runInfoAttrs(info)
			if input != nil {
				attrs = append(attrs, attribute.Int("embedding.texts", len(input.Texts)))
			}
			ctx, _ = einoTracer.Start(ctx, "embedding.embed", trace.WithAttributes(attrs...))
			return ctx
		},
		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, _ *embedding.CallbackOutput) context.Context {
			endSpan(trace.SpanFromContext(ctx), nil)
			return ctx
		},
		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			endSpan(trace.SpanFromContext(ctx), err)
			return ctx
		},
	}
}
