package entity

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus 流水线任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// PipelineJob 异步流水线任务
type PipelineJob struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Category    Category   `json:"category"`
	BatchCount  int        `json:"batch_count"`
	Processed   int        `json:"processed"`
	Approved    int        `json:"approved"`
	Unresolved  int        `json:"unresolved"`
	Failed      int        `json:"failed"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedBy string     `json:"submitted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewPipelineJob 创建待处理任务
func NewPipelineJob(category Category, batchCount int, submittedBy string) *PipelineJob {
	return &PipelineJob{
		ID:          uuid.NewString(),
		Status:      JobStatusPending,
		Category:    category,
		BatchCount:  batchCount,
		SubmittedBy: submittedBy,
		CreatedAt:   time.Now(),
	}
}

// IsTerminal 是否已结束
func (j *PipelineJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
