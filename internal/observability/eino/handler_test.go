package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"rail-inspection-ai-api/internal/domain/service"
	"rail-inspection-ai-api/pkg/metrics"
)

func TestChatModelHandler_RecordsTokens(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithWorkflowProvider(context.Background(), service.WorkflowChatAnswer, "openai")

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-test"}})
	before := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues(service.WorkflowChatAnswer, "openai", "gpt-test", "prompt"))
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Config:     &model.Config{Model: "gpt-test"},
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 5},
	})

	after := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues(service.WorkflowChatAnswer, "openai", "gpt-test", "prompt"))
	assert.Equal(t, float64(12), after-before)
}

func TestChatModelHandler_Error(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithWorkflowProvider(context.Background(), service.WorkflowInspectionReview, "gemini")
	ctx = h.OnStart(ctx, nil, nil)

	before := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues(service.WorkflowInspectionReview, "gemini", "", "error"))
	h.OnError(ctx, nil, errors.New("boom"))
	after := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues(service.WorkflowInspectionReview, "gemini", "", "error"))
	assert.Equal(t, float64(1), after-before)
}

func TestCallElapsed(t *testing.T) {
	assert.Zero(t, callFromContext(context.Background()).elapsed())
	assert.GreaterOrEqual(t, llmCall{started: time.Now().Add(-time.Second)}.elapsed(), 1.0)
}

func TestChatModelHandler_ErrorKeepsStartModel(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithWorkflowProvider(context.Background(), service.WorkflowInspectionDraft, "openai")
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-draft"}})

	labels := []string{service.WorkflowInspectionDraft, "openai", "gpt-draft", "error"}
	before := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues(labels...))
	h.OnError(ctx, nil, errors.New("timeout"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues(labels...))-before)
}

func TestInitRegistersOnce(t *testing.T) {
	assert.NotNil(t, globalHandler())
	Init()
	assert.False(t, Init())
}

func TestCallLabelsDefaultToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", service.WorkflowFromContext(context.Background()))
	ctx := service.WithWorkflowProvider(context.Background(), service.WorkflowChatAnswer, "")
	assert.Equal(t, service.WorkflowChatAnswer, service.WorkflowFromContext(ctx))
	assert.Equal(t, "unknown", service.ProviderFromContext(ctx))
}
