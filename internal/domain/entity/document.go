package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReviewStatus 评审状态
type ReviewStatus string

const (
	ReviewStatusDraft      ReviewStatus = "draft"
	ReviewStatusApproved   ReviewStatus = "approved"
	ReviewStatusUnresolved ReviewStatus = "unresolved"
)

// UngroundedMarker 未检索到任何规程时写入文档的标记
const UngroundedMarker = "ungrounded — regulation not found"

// ErrDocumentFrozen 文档已离开 draft 状态，不可再修改
var ErrDocumentFrozen = errors.New("inspection document is frozen")

// InspectionDocument 点检报告文档
// 由生成器创建，仅评审器可修改；状态离开 draft 后冻结
type InspectionDocument struct {
	ID                 string         `json:"id"`
	Serial             string         `json:"serial"`
	JobID              string         `json:"job_id,omitempty"`
	BatchIndex         int            `json:"batch_index"`
	Category           Category       `json:"category"`
	Batch              DetectionBatch `json:"batch"`
	Narrative          string         `json:"narrative"`
	RiskGrade          RiskGrade      `json:"risk_grade"`
	RecommendedAction  string         `json:"recommended_action"`
	CitedRegulationIDs []string       `json:"cited_regulation_ids"`
	ReviewStatus       ReviewStatus   `json:"review_status"`
	RevisionCount      int            `json:"revision_count"`
	Grounded           bool           `json:"grounded"`
	Marker             string         `json:"marker,omitempty"`
	ReviewNotes        []string       `json:"review_notes,omitempty"`
	RenderedText       string         `json:"rendered_text,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	FinalizedAt        *time.Time     `json:"finalized_at,omitempty"`
}

// NewInspectionDocument 创建草稿文档
func NewInspectionDocument(batch DetectionBatch) *InspectionDocument {
	now := time.Now()
	return &InspectionDocument{
		ID:           uuid.NewString(),
		Serial:       NewSerial(now),
		Category:     batch.Category,
		Batch:        batch,
		ReviewStatus: ReviewStatusDraft,
		CreatedAt:    now,
	}
}

// NewSerial 生成报告编号 RPT-YYYYMMDD-XXXXXX
func NewSerial(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("RPT-%s-%s", now.Format("20060102"), strings.ToUpper(hex[:6]))
}

// IsFrozen 是否已进入终态
func (d *InspectionDocument) IsFrozen() bool {
	return d.ReviewStatus != ReviewStatusDraft
}

// SetCitations 以去重排序的集合形式写入引用规程
func (d *InspectionDocument) SetCitations(ids []string) {
	d.CitedRegulationIDs = NormalizeIDs(ids)
}

// HasCitations 是否至少引用一条规程
func (d *InspectionDocument) HasCitations() bool {
	return len(d.CitedRegulationIDs) > 0
}

// ActionConsistent 处置措施是否符合等级对照表
func (d *InspectionDocument) ActionConsistent() bool {
	return d.RiskGrade.ActionMatches(d.RecommendedAction)
}

// ApplyRevision 用新草稿内容替换当前内容，修订次数加一
func (d *InspectionDocument) ApplyRevision(rev *InspectionDocument, note string) error {
	if d.IsFrozen() {
		return ErrDocumentFrozen
	}
	d.Narrative = rev.Narrative
	d.RiskGrade = rev.RiskGrade
	d.RecommendedAction = rev.RecommendedAction
	d.SetCitations(rev.CitedRegulationIDs)
	d.Grounded = rev.Grounded
	d.Marker = rev.Marker
	d.RevisionCount++
	if note = strings.TrimSpace(note); note != "" {
		d.ReviewNotes = append(d.ReviewNotes, note)
	}
	return nil
}

// Approve draft -> approved
func (d *InspectionDocument) Approve() error {
	return d.finalize(ReviewStatusApproved, "")
}

// MarkUnresolved draft -> unresolved
func (d *InspectionDocument) MarkUnresolved(note string) error {
	return d.finalize(ReviewStatusUnresolved, note)
}

func (d *InspectionDocument) finalize(status ReviewStatus, note string) error {
	if d.IsFrozen() {
		return ErrDocumentFrozen
	}
	now := time.Now()
	d.ReviewStatus = status
	d.FinalizedAt = &now
	if note = strings.TrimSpace(note); note != "" {
		d.ReviewNotes = append(d.ReviewNotes, note)
	}
	return nil
}

// Clone 深拷贝，供编辑器在副本上修改
func (d *InspectionDocument) Clone() *InspectionDocument {
	c := *d
	c.CitedRegulationIDs = append([]string(nil), d.CitedRegulationIDs...)
	c.ReviewNotes = append([]string(nil), d.ReviewNotes...)
	c.Batch.Detections = append([]Detection(nil), d.Batch.Detections...)
	return &c
}

// NormalizeIDs 去空白、去重并排序
func NormalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
