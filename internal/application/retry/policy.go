// Package retry 以显式结果类型驱动外部调用的有限重试。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

// Outcome 单次调用结果
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrExhausted 重试次数耗尽
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	// AttemptTimeout 单次调用超时，超时视为可重试
	AttemptTimeout time.Duration
}

// DefaultPolicy 2 次尝试，1s 起步指数退避
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Initial:     time.Second,
		Max:         10 * time.Second,
		Multiplier:  2,
	}
}

// Backoff 第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := p.Initial
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.Max > 0 && backoff > p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && backoff > p.Max {
		return p.Max
	}
	return backoff
}

// Classify 将错误映射为调用结果：
// 超时与上游模型/检索/向量库故障可重试，参数与校验类错误及调用方取消不重试。
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	if apperrors.IsAppError(err) {
		switch apperrors.AsAppError(err).Code {
		case apperrors.CodeLLMCallFailed,
			apperrors.CodeLLMProviderError,
			apperrors.CodeGenerationFailed,
			apperrors.CodeEmbeddingFailed,
			apperrors.CodeRetrievalFailed,
			apperrors.CodeVectorDBError,
			apperrors.CodeWebSearchError,
			apperrors.CodeTooManyRequests,
			apperrors.CodeServiceUnavailable:
			return Retryable
		}
		return Fatal
	}
	return Retryable
}

// Func 一次调用；返回的 Outcome 决定是否继续
type Func func(ctx context.Context, attempt int) (Outcome, error)

// Do 按策略执行 fn：Success 立即返回；Fatal 直接返回该错误；
// Retryable 在退避后重试，耗尽后返回包装了 ErrExhausted 与最后一次错误的错误。
func (p Policy) Do(ctx context.Context, operation string, fn Func) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := p.call(ctx, attempt, fn)
		switch outcome {
		case Success:
			return nil
		case Fatal:
			if err == nil {
				err = fmt.Errorf("%s: fatal outcome", operation)
			}
			return err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		metrics.LLMRetryTotal.WithLabelValues(operation).Inc()
		logger.Warn(ctx, "retrying after retryable failure",
			"operation", operation,
			"attempt", attempt,
			"backoff", wait.String(),
			"error", fmt.Sprint(err),
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrExhausted, attempts, lastErr)
}

func (p Policy) call(ctx context.Context, attempt int, fn Func) (Outcome, error) {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	outcome, err := fn(attemptCtx, attempt)
	// 单次超时但调用方上下文仍有效：可重试
	if outcome == Fatal && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		outcome = Retryable
	}
	return outcome, err
}

// Value 执行返回值的调用，错误按 Classify 分类
func Value[T any](ctx context.Context, p Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, operation, func(ctx context.Context, _ int) (Outcome, error) {
		v, err := fn(ctx)
		if err != nil {
			return Classify(err), err
		}
		out = v
		return Success, nil
	})
	return out, err
}
