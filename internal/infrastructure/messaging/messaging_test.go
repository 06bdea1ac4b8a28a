package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/pkg/logger"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client
}

func newTestConsumer(client *redis.Client) *Consumer {
	return NewConsumer(client, ConsumerConfig{
		Stream:       StreamInspectionJobs,
		Group:        ConsumerGroupInspectionWorker,
		ConsumerName: "worker-test",
		BlockTimeout: 50 * time.Millisecond,
		RetryLimit:   2,
		Backoff:      BackoffConfig{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
	})
}

func TestProducerConsumer_InspectionJob(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := newTestConsumer(client)
	got := make(chan *InspectionJobMessage, 1)
	gotReq := make(chan string, 1)
	consumer.RegisterHandler(TypeInspectionJob, func(ctx context.Context, msg *Message) error {
		var job InspectionJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			return err
		}
		reqID, _ := ctx.Value(logger.RequestIDKey).(string)
		gotReq <- reqID
		got <- &job
		return nil
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	producer := NewProducer(client, 0)
	pubCtx := logger.WithContext(ctx, logger.RequestIDKey, "req-42")
	_, err := producer.PublishInspectionJob(pubCtx, &InspectionJobMessage{
		JobID:    "job-1",
		Category: "rail",
		Frames:   json.RawMessage(`[{"frame_index":1}]`),
	})
	require.NoError(t, err)

	select {
	case job := <-got:
		assert.Equal(t, "job-1", job.JobID)
		assert.Equal(t, "rail", job.Category)
		assert.JSONEq(t, `[{"frame_index":1}]`, string(job.Frames))
		assert.Equal(t, "req-42", <-gotReq)
	case <-time.After(3 * time.Second):
		t.Fatal("message was not consumed")
	}
}

func TestConsumer_PermanentFailureGoesToDLQ(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := newTestConsumer(client)
	consumer.RegisterHandler(TypeInspectionJob, func(context.Context, *Message) error {
		return fmt.Errorf("bad frames: %w", ErrPermanent)
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	_, err := NewProducer(client, 0).PublishInspectionJob(ctx, &InspectionJobMessage{JobID: "job-2", Frames: json.RawMessage(`[]`)})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := consumer.DLQLength(ctx)
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConsumer_TransientFailureIsRetried(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := newTestConsumer(client)
	var calls atomic.Int32
	consumer.RegisterHandler(TypeInspectionJob, func(context.Context, *Message) error {
		if calls.Add(1) == 1 {
			return fmt.Errorf("llm timeout")
		}
		return nil
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	_, err := NewProducer(client, 0).PublishInspectionJob(ctx, &InspectionJobMessage{JobID: "job-5", Frames: json.RawMessage(`[]`)})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	n, err := consumer.DLQLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumer_DeadLetterKeepsEnvelope(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := newTestConsumer(client)
	consumer.RegisterHandler(TypeInspectionJob, func(context.Context, *Message) error {
		return ErrPermanent
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	_, err := NewProducer(client, 0).PublishInspectionJob(ctx, &InspectionJobMessage{JobID: "job-6", Frames: json.RawMessage(`[]`)})
	require.NoError(t, err)

	var entries []redis.XMessage
	require.Eventually(t, func() bool {
		entries, err = client.XRange(ctx, StreamInspectionJobs.DLQStream(), "-", "+").Result()
		return err == nil && len(entries) == 1
	}, 3*time.Second, 20*time.Millisecond)

	var dl DeadLetter
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &dl))
	assert.Equal(t, string(StreamInspectionJobs), dl.Stream)
	require.NotNil(t, dl.Message)
	assert.Equal(t, "job-6", dl.Message.JobID)
	assert.Contains(t, dl.Error, "permanent")
}

func TestConsumer_StartTwiceFails(t *testing.T) {
	consumer := newTestConsumer(setupTestRedis(t))
	ctx := context.Background()
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()
	require.Error(t, consumer.Start(ctx))
}

func TestBackoffConfig_CalculateBackoff(t *testing.T) {
	c := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, c.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, c.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, c.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, c.CalculateBackoff(5))
}

func TestStream_DLQStream(t *testing.T) {
	assert.Equal(t, "dlq:stream:inspection:jobs", StreamInspectionJobs.DLQStream())
}

func TestPublishInspectionJob_Validation(t *testing.T) {
	p := NewProducer(setupTestRedis(t), 0)
	ctx := context.Background()

	_, err := p.PublishInspectionJob(ctx, &InspectionJobMessage{Frames: json.RawMessage(`[]`)})
	require.Error(t, err)

	_, err = p.PublishInspectionJob(ctx, &InspectionJobMessage{JobID: "job-3", Frames: json.RawMessage(`[{`)})
	require.Error(t, err)
}

func TestPublish_CarriesMetadata(t *testing.T) {
	client := setupTestRedis(t)
	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-7")
	ctx = logger.WithContext(ctx, logger.OperatorIDKey, "op-1")

	_, err := NewProducer(client, 10).PublishInspectionJob(ctx, &InspectionJobMessage{JobID: "job-4", Frames: json.RawMessage(`[]`)})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, string(StreamInspectionJobs), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	msg, err := decodeMessage(entries[0])
	require.NoError(t, err)
	assert.Equal(t, TypeInspectionJob, msg.Type)
	assert.Equal(t, "job-4", msg.JobID)
	assert.Equal(t, "req-7", msg.GetMetadata(metaRequestID))
	assert.Equal(t, "op-1", msg.GetMetadata(metaOperatorID))
}

func TestUnmarshalPayload_CorruptIsPermanent(t *testing.T) {
	msg := &Message{Type: TypeInspectionJob, Payload: json.RawMessage(`"not an object"`)}
	var job InspectionJobMessage
	err := msg.UnmarshalPayload(&job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestBackoffConfig_ZeroValueFallsBackToDefault(t *testing.T) {
	var c BackoffConfig
	assert.Equal(t, time.Second, c.CalculateBackoff(0))
	assert.Equal(t, time.Minute, c.CalculateBackoff(10))
}
