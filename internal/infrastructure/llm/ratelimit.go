package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"rail-inspection-ai-api/pkg/logger"
)

// ErrRateLimited 本地限流拒绝；错误文本含 "rate limit"，上层按限流处理
var ErrRateLimited = errors.New("llm rate limit exceeded")

// rateLimitedModel 在调用前检查共享配额，Redis 不可用时放行
type rateLimitedModel struct {
	inner   model.BaseChatModel
	limiter Limiter
	key     string
	limit   int
	window  time.Duration
}

func newRateLimitedModel(inner model.BaseChatModel, limiter Limiter, provider string, limit int, window time.Duration) *rateLimitedModel {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimitedModel{
		inner:   inner,
		limiter: limiter,
		key:     "ratelimit:llm:" + provider,
		limit:   limit,
		window:  window,
	}
}

func (m *rateLimitedModel) acquire(ctx context.Context) error {
	ok, err := m.limiter.Allow(ctx, m.key, m.limit, m.window)
	if err != nil {
		logger.Warn(ctx, "llm rate limiter unavailable, allowing call", "error", err.Error())
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (m *rateLimitedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	return m.inner.Generate(ctx, input, opts...)
}

func (m *rateLimitedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	return m.inner.Stream(ctx, input, opts...)
}
