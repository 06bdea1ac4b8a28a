package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/config"
	wfnode "rail-inspection-ai-api/internal/workflow/node"
)

type stubModel struct{ calls int }

func (s *stubModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	s.calls++
	return schema.AssistantMessage("ok", nil), nil
}

func (s *stubModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	s.calls++
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
}

type countingLimiter struct {
	allowed int
	err     error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.allowed <= 0 {
		return false, nil
	}
	l.allowed--
	return true, nil
}

func TestRateLimitedModel(t *testing.T) {
	inner := &stubModel{}
	m := newRateLimitedModel(inner, &countingLimiter{allowed: 1}, "openai", 1, time.Minute)

	_, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), nil)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, wfnode.IsRateLimitError(err))
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedModel_LimiterDownAllows(t *testing.T) {
	inner := &stubModel{}
	m := newRateLimitedModel(inner, &countingLimiter{err: errors.New("redis down")}, "openai", 1, time.Minute)

	_, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestEinoFactory_UnknownProvider(t *testing.T) {
	f := NewEinoFactory(&config.LLMConfig{DefaultProvider: "missing"}, nil)
	_, err := f.Get(context.Background(), "")
	assert.ErrorContains(t, err, `"missing" is not configured`)
}

func TestOpenAIConfig_OmitsZeroMaxTokens(t *testing.T) {
	c := openAIConfig(config.ProviderConfig{Model: "gpt-4o-mini", Temperature: 0.2})
	assert.Nil(t, c.MaxTokens)
	require.NotNil(t, c.Temperature)
	assert.InDelta(t, 0.2, *c.Temperature, 1e-6)

	c = openAIConfig(config.ProviderConfig{MaxTokens: 2048})
	require.NotNil(t, c.MaxTokens)
	assert.Equal(t, 2048, *c.MaxTokens)
}

func TestEinoFactory_UnsupportedType(t *testing.T) {
	f := NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "x",
		Providers:       map[string]config.ProviderConfig{"x": {Type: "ollama"}},
	}, nil)
	_, err := f.Get(context.Background(), "")
	assert.ErrorContains(t, err, "unsupported provider type")
}

func TestSplitMessages(t *testing.T) {
	system, history, last := splitMessages([]*schema.Message{
		schema.SystemMessage("규칙"),
		schema.UserMessage("첫 질문"),
		schema.AssistantMessage("첫 답변", nil),
		schema.UserMessage("두번째 질문"),
	})
	assert.Equal(t, "규칙", system)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "두번째 질문", last)
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(map[string]any{
		"type":     "object",
		"required": []any{"risk_grade"},
		"properties": map[string]any{
			"risk_grade": map[string]any{"type": "string", "enum": []any{"E", "O", "X1", "X2", "S"}},
			"cited_regulation_ids": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"risk_grade"}, s.Required)
	assert.Equal(t, []string{"E", "O", "X1", "X2", "S"}, s.Properties["risk_grade"].Enum)
	assert.Equal(t, genai.TypeArray, s.Properties["cited_regulation_ids"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["cited_regulation_ids"].Items.Type)
}
