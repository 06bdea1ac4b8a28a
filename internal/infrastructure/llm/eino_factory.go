// Package llm 按提供商名称惰性构建 eino ChatModel，并在配置限流时包一层 Redis 限流
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"rail-inspection-ai-api/internal/config"
)

const (
	ProviderTypeOpenAI = "openai"
	ProviderTypeGemini = "gemini"
)

// Limiter 跨实例的调用限流
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EinoFactory 缓存已构建的模型；构建失败不缓存，下次调用重试
type EinoFactory struct {
	cfg     *config.LLMConfig
	limiter Limiter

	mu    sync.RWMutex
	built map[string]model.BaseChatModel
}

// NewEinoFactory limiter 为 nil 时不限流
func NewEinoFactory(cfg *config.LLMConfig, limiter Limiter) *EinoFactory {
	return &EinoFactory{cfg: cfg, limiter: limiter, built: map[string]model.BaseChatModel{}}
}

// Get 返回 name 对应的模型；name 为空时取 DefaultProvider
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.cfg.DefaultProvider
	}
	if m := f.cached(name); m != nil {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.built[name]; ok {
		return m, nil
	}
	m, err := f.build(ctx, name)
	if err != nil {
		return nil, err
	}
	f.built[name] = m
	return m, nil
}

func (f *EinoFactory) cached(name string) model.BaseChatModel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.built[name]
}

func (f *EinoFactory) build(ctx context.Context, name string) (model.BaseChatModel, error) {
	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", name)
	}

	var (
		m   model.BaseChatModel
		err error
	)
	switch kind := strings.ToLower(strings.TrimSpace(pc.Type)); kind {
	case "", ProviderTypeOpenAI:
		m, err = openai.NewChatModel(ctx, openAIConfig(pc))
	case ProviderTypeGemini:
		m, err = NewGeminiChatModel(ctx, pc)
	default:
		return nil, fmt.Errorf("llm provider %q: unsupported provider type %q", name, pc.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", name, err)
	}

	if f.limiter != nil && f.cfg.RateLimit > 0 {
		m = newRateLimitedModel(m, f.limiter, name, f.cfg.RateLimit, f.cfg.RateLimitWindow)
	}
	return m, nil
}

// openAIConfig 兼容 OpenAI 协议的网关同样走这里
func openAIConfig(pc config.ProviderConfig) *openai.ChatModelConfig {
	temp := float32(pc.Temperature)
	c := &openai.ChatModelConfig{
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: &temp,
		Timeout:     pc.Timeout,
	}
	if pc.MaxTokens > 0 {
		maxTokens := pc.MaxTokens
		c.MaxTokens = &maxTokens
	}
	return c
}
