// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"rail-inspection-ai-api/internal/domain/entity"
)

// JobResponse 任务响应
type JobResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Category    string     `json:"category,omitempty"`
	BatchCount  int        `json:"batch_count"`
	Processed   int        `json:"processed"`
	Approved    int        `json:"approved"`
	Unresolved  int        `json:"unresolved"`
	Failed      int        `json:"failed"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	SubmittedBy string     `json:"submitted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// ToJobResponse 将领域实体转换为响应 DTO
func ToJobResponse(j *entity.PipelineJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Category:    string(j.Category),
		BatchCount:  j.BatchCount,
		Processed:   j.Processed,
		Approved:    j.Approved,
		Unresolved:  j.Unresolved,
		Failed:      j.Failed,
		ArchiveKey:  j.ArchiveKey,
		ErrorMsg:    j.Error,
		SubmittedBy: j.SubmittedBy,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// ToJobListResponse 转换任务列表
func ToJobListResponse(jobs []*entity.PipelineJob) *JobListResponse {
	out := &JobListResponse{Jobs: make([]*JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, ToJobResponse(j))
	}
	return out
}
