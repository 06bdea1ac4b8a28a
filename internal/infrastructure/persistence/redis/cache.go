package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// answerGenerationKey 问答缓存代数。规程或报告索引变更时递增，旧代数的键不再命中并随 TTL 过期。
const answerGenerationKey = "chat:answer:generation"

// Cache 问答回答缓存
type Cache struct {
	client *Client
	loads  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// versioned 在 key 后拼接当前代数；代数键不存在视为 0
func (c *Cache) versioned(ctx context.Context, key string) (string, int64, error) {
	var gen int64
	v, err := c.client.rdb.Get(ctx, answerGenerationKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return "", 0, err
	default:
		if gen, err = strconv.ParseInt(v, 10, 64); err != nil {
			return "", 0, fmt.Errorf("corrupt answer generation %q: %w", v, err)
		}
	}
	return key + "@" + strconv.FormatInt(gen, 10), gen, nil
}

// LoadAnswer 读穿缓存。未命中时同一键的并发加载只执行一次 loader；
// loader 出错时不写缓存，写缓存失败不影响返回。
func (c *Cache) LoadAnswer(ctx context.Context, key string, ttl time.Duration, loader func() (any, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.LoadAnswer", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	full, gen, err := c.versioned(ctx, key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("cache.generation", gen))

	cached, err := c.client.rdb.Get(ctx, full).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.loads.Do(full, func() (any, error) {
		answer, err := loader()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(answer)
		if err != nil {
			return nil, fmt.Errorf("encode cached answer: %w", err)
		}
		if err := c.client.rdb.Set(ctx, full, raw, ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return raw, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// InvalidateChatAnswers 递增代数，使全部已缓存回答失效
func (c *Cache) InvalidateChatAnswers(ctx context.Context) error {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidateChatAnswers")
	defer span.End()

	gen, err := c.client.rdb.Incr(ctx, answerGenerationKey).Result()
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int64("cache.generation", gen))
	return nil
}
