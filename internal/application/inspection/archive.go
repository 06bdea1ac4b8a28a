package inspection

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rail-inspection-ai-api/internal/domain/entity"
)

// 各类别批次报告名称
var datasetNames = map[entity.Category]string{
	entity.CategoryRail:      "선로_탐지_보고서",
	entity.CategoryInsulator: "애자_탐지_보고서",
	entity.CategoryNest:      "새둥지_탐지_보고서",
}

// BatchReport 一个任务的汇总报告（归档为 JSON）
type BatchReport struct {
	ReportID     string            `json:"report_id"`
	JobID        string            `json:"job_id"`
	DatasetType  entity.Category   `json:"dataset_type"`
	DatasetName  string            `json:"dataset_name"`
	CreatedAt    time.Time         `json:"created_at"`
	TotalCount   int               `json:"total_count"`
	Summary      map[string]int    `json:"summary"`
	HighestGrade entity.RiskGrade  `json:"highest_grade,omitempty"` // approved 文档中最严重的等级
	Reports      []BatchReportItem `json:"reports"`
}

// BatchReportItem 单个批次条目
type BatchReportItem struct {
	Index            int                    `json:"index"`
	FrameID          string                 `json:"frame_id"`
	ImageFile        string                 `json:"image_file,omitempty"`
	Status           string                 `json:"status"`
	Batch            *entity.DetectionBatch `json:"vision_result,omitempty"`
	DocumentID       string                 `json:"document_id,omitempty"`
	Serial           string                 `json:"serial,omitempty"`
	RiskGrade        entity.RiskGrade       `json:"risk_grade,omitempty"`
	RevisionCount    int                    `json:"revision_count"`
	DocumentContent  string                 `json:"document_content,omitempty"`
	DocumentSections map[string]string      `json:"document_sections,omitempty"`
	ReviewNotes      []string               `json:"review_notes,omitempty"`
	Rejected         []RecordError          `json:"rejected,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// DatasetName 类别对应的报告名称
func DatasetName(c entity.Category) string {
	if n, ok := datasetNames[c]; ok {
		return n
	}
	return string(c)
}

// BuildBatchReport 按批次顺序汇总结果
func BuildBatchReport(job *entity.PipelineJob, outcomes []BatchOutcome, now time.Time) *BatchReport {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%d", job.Category, job.ID, now.UnixNano())))
	report := &BatchReport{
		ReportID:    fmt.Sprintf("RPT-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(sum[:])[:6])),
		JobID:       job.ID,
		DatasetType: job.Category,
		DatasetName: DatasetName(job.Category),
		CreatedAt:   now,
		TotalCount:  len(outcomes),
		Summary:     make(map[string]int),
		Reports:     make([]BatchReportItem, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		item := BatchReportItem{
			Index:    o.Index + 1,
			FrameID:  o.FrameID,
			Status:   o.Status(),
			Rejected: o.Rejected,
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		if d := o.Document; d != nil {
			batch := d.Batch
			item.Batch = &batch
			item.ImageFile = d.Batch.ImageFile
			item.DocumentID = d.ID
			item.Serial = d.Serial
			item.RiskGrade = d.RiskGrade
			item.RevisionCount = d.RevisionCount
			item.DocumentContent = d.RenderedText
			item.DocumentSections = ParseSections(d.RenderedText)
			item.ReviewNotes = d.ReviewNotes
		}
		report.Summary[item.Status]++
		report.Reports = append(report.Reports, item)
	}
	report.HighestGrade = highestApprovedGrade(outcomes)
	return report
}

func highestApprovedGrade(outcomes []BatchOutcome) entity.RiskGrade {
	var grades []entity.RiskGrade
	for _, o := range outcomes {
		if o.Status() == OutcomeApproved {
			grades = append(grades, o.Document.RiskGrade)
		}
	}
	if len(grades) == 0 {
		return ""
	}
	return entity.MaxGrade(grades...)
}

// ArchiveKey 归档对象键：<category>/<dataset_name>_<timestamp>_<job>.json
func ArchiveKey(job *entity.PipelineJob, now time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s.json", job.Category, DatasetName(job.Category), now.Format("20060102_150405"), job.ID)
}

// Marshal 输出带缩进的 JSON（保留韩文原文）
func (r *BatchReport) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
