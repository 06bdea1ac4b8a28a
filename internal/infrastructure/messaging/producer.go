package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
	"rail-inspection-ai-api/pkg/tracer"
)

var streamTracer = otel.Tracer("messaging")

const defaultStreamMaxLen = 100000

// Producer 向点检任务流追加消息，流长度按 MAXLEN ~ 近似裁剪
type Producer struct {
	client *redis.Client
	maxLen int64
}

func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish XADD 一条消息，返回流内条目 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := streamTracer.Start(ctx, "producer.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.type", msg.Type),
			attribute.String("job.id", msg.JobID),
		))
	defer span.End()

	// 消费端据此续接同一条链路
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	tracer.Inject(ctx, msg.Metadata)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to encode message envelope: %w", err)
	}
	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamPublished.WithLabelValues(string(stream), "error").Inc()
		return "", fmt.Errorf("failed to append to %s: %w", stream, err)
	}
	metrics.RedisStreamPublished.WithLabelValues(string(stream), "ok").Inc()
	span.SetAttributes(attribute.String("stream.entry_id", entryID))
	return entryID, nil
}

// PublishInspectionJob 校验并投递点检任务，请求 ID 与操作员随消息传给 worker 日志
func (p *Producer) PublishInspectionJob(ctx context.Context, job *InspectionJobMessage) (string, error) {
	if err := job.validate(); err != nil {
		return "", err
	}
	msg, err := NewMessage(job.JobID, TypeInspectionJob, job.JobID, job)
	if err != nil {
		return "", err
	}
	if v, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.SetMetadata(metaRequestID, v)
	}
	if v, ok := ctx.Value(logger.OperatorIDKey).(string); ok {
		msg.SetMetadata(metaOperatorID, v)
	}

	entryID, err := p.Publish(ctx, StreamInspectionJobs, msg)
	if err != nil {
		return "", err
	}
	logger.Debug(ctx, "inspection job enqueued", "job_id", job.JobID, "entry_id", entryID)
	return entryID, nil
}
