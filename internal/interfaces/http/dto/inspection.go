package dto

import (
	"encoding/json"

	"rail-inspection-ai-api/internal/application/inspection"
	"rail-inspection-ai-api/internal/domain/entity"
)

// InspectionRequest 流水线提交请求；frames 为视觉模型输出的帧数组
type InspectionRequest struct {
	Category string          `json:"category"`
	Frames   json.RawMessage `json:"frames" binding:"required"`
}

// BatchOutcomeResponse 单批次结果
type BatchOutcomeResponse struct {
	Index    int                      `json:"index"`
	FrameID  string                   `json:"frame_id"`
	Status   string                   `json:"status"`
	Document *DocumentResponse        `json:"document,omitempty"`
	Rejected []inspection.RecordError `json:"rejected,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// InspectionResponse 同步流水线响应
type InspectionResponse struct {
	Job      *JobResponse            `json:"job"`
	Outcomes []*BatchOutcomeResponse `json:"outcomes"`
}

// DocumentResponse 点检报告响应
type DocumentResponse struct {
	*entity.InspectionDocument
	Sections map[string]string `json:"sections,omitempty"`
}

// DocumentListResponse 报告列表
type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}

// ToDocumentResponse 附带按 [Section] 拆分的渲染内容
func ToDocumentResponse(d *entity.InspectionDocument) *DocumentResponse {
	if d == nil {
		return nil
	}
	resp := &DocumentResponse{InspectionDocument: d}
	if d.RenderedText != "" {
		resp.Sections = inspection.ParseSections(d.RenderedText)
	}
	return resp
}

// ToInspectionResponse 转换任务执行结果
func ToInspectionResponse(res *inspection.JobResult) *InspectionResponse {
	out := &InspectionResponse{
		Job:      ToJobResponse(res.Job),
		Outcomes: make([]*BatchOutcomeResponse, 0, len(res.Outcomes)),
	}
	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		item := &BatchOutcomeResponse{
			Index:    o.Index,
			FrameID:  o.FrameID,
			Status:   o.Status(),
			Document: ToDocumentResponse(o.Document),
			Rejected: o.Rejected,
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, item)
	}
	return out
}
