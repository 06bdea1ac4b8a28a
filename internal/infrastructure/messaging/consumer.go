package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
	"rail-inspection-ai-api/pkg/tracer"
)

// ErrPermanent 处理器返回此错误（或包装它）时消息直接进入死信流，不再重试
var ErrPermanent = errors.New("permanent message failure")

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

const (
	readBatch    = 10
	pendingBatch = 20
)

// ConsumerConfig 消费者配置；零值字段取默认值
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func (cfg *ConsumerConfig) applyDefaults() {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
}

// Consumer 消费者组中的一个成员。
// 处理失败的消息不确认，留在本消费者的 pending 列表里，等待退避时间过后重新认领处理；
// 投递次数达到 RetryLimit 或返回 ErrPermanent 时写入死信流并确认。
// 其他成员崩溃遗留的 pending 消息在空闲超过 reclaimIdle 后被接管。
type Consumer struct {
	client      *redis.Client
	cfg         ConsumerConfig
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	cfg.applyDefaults()
	return &Consumer{
		client:      client,
		cfg:         cfg,
		reclaimIdle: max(5*time.Minute, 2*cfg.Backoff.Max),
		handlers:    make(map[string]MessageHandler),
	}
}

// RegisterHandler 按消息类型注册处理器，须在 Start 之前调用
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

func (c *Consumer) handler(msgType string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[msgType]
	return h, ok
}

// Start 确保消费者组存在并在后台开始消费，ctx 取消或 Stop 时退出
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("consumer %s already running", c.cfg.ConsumerName)
	}

	err := c.client.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.cfg.Group, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(runCtx)
	}()
	return nil
}

// Stop 停止读取并等待正在处理的消息结束
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *Consumer) loop(ctx context.Context) {
	logger.Info(ctx, "consumer started",
		"stream", string(c.cfg.Stream),
		"group", string(c.cfg.Group),
		"consumer", c.cfg.ConsumerName,
	)
	defer logger.Info(context.WithoutCancel(ctx), "consumer stopped", "consumer", c.cfg.ConsumerName)

	var lastReclaim time.Time
	for ctx.Err() == nil {
		c.retryDue(ctx)
		if time.Since(lastReclaim) >= c.cfg.ClaimInterval {
			c.reclaimStale(ctx)
			lastReclaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.ConsumerName,
			Streams:  []string{string(c.cfg.Stream), ">"},
			Count:    readBatch,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			logger.Error(ctx, "failed to read from stream", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.process(ctx, xmsg)
			}
		}
	}
}

func decodeMessage(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("stream entry %s: %w", xmsg.ID, err)
	}
	return &msg, nil
}

// messageContext 把消息元数据恢复到日志上下文，并把生产端 span 作为链接挂到消费 span 上
func messageContext(ctx context.Context, span trace.Span, msg *Message) context.Context {
	if msg.JobID != "" {
		ctx = logger.WithContext(ctx, logger.JobIDKey, msg.JobID)
	}
	if v := msg.GetMetadata(metaRequestID); v != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, v)
	}
	if v := msg.GetMetadata(metaOperatorID); v != "" {
		ctx = logger.WithContext(ctx, logger.OperatorIDKey, v)
	}
	if remote := trace.SpanContextFromContext(tracer.Extract(ctx, msg.Metadata)); remote.IsValid() {
		span.AddLink(trace.Link{SpanContext: remote})
		ctx = logger.WithContext(ctx, logger.TraceIDKey, remote.TraceID().String())
	}
	return ctx
}

func (c *Consumer) process(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := streamTracer.Start(ctx, "consumer.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("stream", string(c.cfg.Stream)),
			attribute.String("stream.entry_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decodeMessage(xmsg)
	if err != nil {
		logger.Error(ctx, "dropping undecodable stream entry", err)
		c.count("malformed")
		c.ack(ctx, xmsg.ID)
		return
	}
	ctx = messageContext(ctx, span, msg)
	span.SetAttributes(attribute.String("message.type", msg.Type), attribute.String("job.id", msg.JobID))

	h, ok := c.handler(msg.Type)
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.count("unhandled")
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := h(ctx, msg); err != nil {
		span.RecordError(err)
		c.count("error")
		c.fail(ctx, xmsg.ID, msg, err)
		return
	}
	c.count("ok")
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) count(status string) {
	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), status).Inc()
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	err := c.client.XAck(context.WithoutCancel(ctx), string(c.cfg.Stream), string(c.cfg.Group), entryID).Err()
	if err != nil {
		logger.Error(ctx, "failed to ack stream entry", err, "entry_id", entryID)
	}
}

// fail 永久错误或投递次数用尽时转入死信流；否则保持 pending 等待 retryDue 重投
func (c *Consumer) fail(ctx context.Context, entryID string, msg *Message, cause error) {
	deliveries := c.deliveries(ctx, entryID)
	if errors.Is(cause, ErrPermanent) || deliveries >= c.cfg.RetryLimit {
		logger.Error(ctx, "message dead-lettered", cause, "deliveries", deliveries)
		c.deadLetter(ctx, msg, cause)
		c.ack(ctx, entryID)
		return
	}
	logger.Warn(ctx, "message failed, will retry",
		"error", cause.Error(),
		"deliveries", deliveries,
		"retry_in", c.cfg.Backoff.CalculateBackoff(deliveries).String(),
	)
}

// deliveries XPENDING 记录的投递次数
func (c *Consumer) deliveries(ctx context.Context, entryID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// DeadLetter 死信流条目
type DeadLetter struct {
	Stream   string   `json:"original_stream"`
	Message  *Message `json:"message"`
	Error    string   `json:"error"`
	FailedAt int64    `json:"failed_at"`
}

func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error) {
	raw, err := json.Marshal(DeadLetter{
		Stream:   string(c.cfg.Stream),
		Message:  msg,
		Error:    cause.Error(),
		FailedAt: time.Now().Unix(),
	})
	if err != nil {
		logger.Error(ctx, "failed to encode dead letter", err)
		return
	}
	if err := c.client.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]any{"data": string(raw)},
	}).Err(); err != nil {
		logger.Error(ctx, "failed to append dead letter", err)
		return
	}
	c.count("dlq")
}

// pending 查询 pending 列表；consumer 为空时覆盖整个消费者组
func (c *Consumer) pending(ctx context.Context, consumer string) []redis.XPendingExt {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Start:    "-",
		End:      "+",
		Count:    pendingBatch,
		Consumer: consumer,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		logger.Error(ctx, "failed to list pending entries", err)
	}
	return entries
}

// claim 把 pending 条目认领到本消费者；exhausted 的条目直接进入死信流
func (c *Consumer) claim(ctx context.Context, entryID string, minIdle time.Duration, exhausted bool) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{entryID},
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			logger.Error(ctx, "failed to claim pending entry", err, "entry_id", entryID)
		}
		return
	}

	for _, xmsg := range claimed {
		if !exhausted {
			c.process(ctx, xmsg)
			continue
		}
		if msg, err := decodeMessage(xmsg); err == nil {
			c.deadLetter(ctx, msg, fmt.Errorf("exceeded %d deliveries", c.cfg.RetryLimit))
		}
		c.ack(ctx, xmsg.ID)
	}
}

// retryDue 重投本消费者名下退避期已过的失败消息
func (c *Consumer) retryDue(ctx context.Context) {
	for _, p := range c.pending(ctx, c.cfg.ConsumerName) {
		n := int(p.RetryCount)
		if n >= c.cfg.RetryLimit {
			c.claim(ctx, p.ID, 0, true)
			continue
		}
		wait := c.cfg.Backoff.CalculateBackoff(n)
		if p.Idle >= wait {
			c.claim(ctx, p.ID, wait, false)
		}
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.cfg.ConsumerName || p.Idle < c.reclaimIdle {
			continue
		}
		logger.Warn(ctx, "reclaiming stale entry", "entry_id", p.ID, "owner", p.Consumer)
		c.claim(ctx, p.ID, c.reclaimIdle, int(p.RetryCount) >= c.cfg.RetryLimit)
	}
}

// DLQLength 死信流长度
func (c *Consumer) DLQLength(ctx context.Context) (int64, error) {
	n, err := c.client.XLen(ctx, c.cfg.Stream.DLQStream()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// MonitorDLQ 每分钟上报死信流长度，超过阈值时告警；阈值 <= 0 时只上报指标
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlq := c.cfg.Stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := c.DLQLength(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "failed to read dead-letter length", err, "stream", dlq)
			}
			continue
		}
		metrics.RedisStreamDLQLength.WithLabelValues(dlq).Set(float64(n))
		if alertThreshold > 0 && n > alertThreshold {
			logger.Warn(ctx, "dead-letter stream above threshold", "stream", dlq, "count", n, "threshold", alertThreshold)
		}
	}
}
