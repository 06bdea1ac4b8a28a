// Package messaging 基于 Redis Streams 投递异步点检任务
package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stream 流名称；失败超限的消息转入 "dlq:" 前缀的同名流
type Stream string

// StreamInspectionJobs 点检任务流
const StreamInspectionJobs Stream = "stream:inspection:jobs"

// DLQStream 死信流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

// ConsumerGroupInspectionWorker 点检 worker 消费者组
const ConsumerGroupInspectionWorker ConsumerGroup = "cg-inspection-worker"

// TypeInspectionJob 点检任务消息类型
const TypeInspectionJob = "inspection_job"

// 元数据键
const (
	metaRequestID  = "request_id"
	metaOperatorID = "operator_id"
)

// Message 写入流 "data" 字段的信封。Metadata 同时承载 W3C trace 头。
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	JobID     string            `json:"job_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 编码载荷并生成信封
func NewMessage(id, msgType, jobID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		JobID:     jobID,
		Payload:   raw,
		Metadata:  map[string]string{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 空值不写入
func (m *Message) SetMetadata(key, value string) {
	if value == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	m.Metadata[key] = value
}

func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解码载荷；载荷损坏属于永久失败，不再重试
func (m *Message) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", m.Type, err, ErrPermanent)
	}
	return nil
}

// InspectionJobMessage 点检任务载荷。任务记录已由 API 写入仓储，Frames 为请求中的原始帧数组。
type InspectionJobMessage struct {
	JobID    string          `json:"job_id"`
	Category string          `json:"category,omitempty"`
	Frames   json.RawMessage `json:"frames"`
}

// validate 发布前校验
func (j *InspectionJobMessage) validate() error {
	if j == nil || j.JobID == "" {
		return fmt.Errorf("inspection job message requires a job id")
	}
	if !json.Valid(j.Frames) {
		return fmt.Errorf("inspection job %s: frames are not valid JSON", j.JobID)
	}
	return nil
}

// BackoffConfig 重试退避：Initial 起按 Multiplier 递增，封顶 Max
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 1s 起翻倍，封顶 1min
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 attempt 次重试前的等待时长
func (c BackoffConfig) CalculateBackoff(attempt int) time.Duration {
	if c.Initial <= 0 {
		c = DefaultBackoffConfig()
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	d := float64(c.Initial)
	for ; attempt > 0; attempt-- {
		d *= c.Multiplier
		if c.Max > 0 && d >= float64(c.Max) {
			return c.Max
		}
	}
	return time.Duration(d)
}
