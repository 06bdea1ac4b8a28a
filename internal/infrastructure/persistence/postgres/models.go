package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rail-inspection-ai-api/internal/domain/entity"
)

// documentModel inspection_documents 表
type documentModel struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey"`
	Serial             string         `gorm:"type:varchar(32);uniqueIndex;not null"`
	JobID              string         `gorm:"type:varchar(36);index"`
	BatchIndex         int            `gorm:"not null;default:0"`
	Category           string         `gorm:"type:varchar(32);index;not null"`
	Batch              []byte         `gorm:"type:jsonb;not null"`
	Narrative          string         `gorm:"type:text"`
	RiskGrade          string         `gorm:"type:varchar(4);index"`
	RecommendedAction  string         `gorm:"type:text"`
	CitedRegulationIDs pq.StringArray `gorm:"type:text[]"`
	ReviewStatus       string         `gorm:"type:varchar(16);index;not null"`
	RevisionCount      int            `gorm:"not null;default:0"`
	Grounded           bool           `gorm:"not null;default:false"`
	Marker             string         `gorm:"type:varchar(64)"`
	ReviewNotes        pq.StringArray `gorm:"type:text[]"`
	RenderedText       string         `gorm:"type:text"`
	CreatedAt          time.Time      `gorm:"index"`
	FinalizedAt        *time.Time
}

func (documentModel) TableName() string { return "inspection_documents" }

func toDocumentModel(d *entity.InspectionDocument) (*documentModel, error) {
	batch, err := json.Marshal(d.Batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	return &documentModel{
		ID:                 d.ID,
		Serial:             d.Serial,
		JobID:              d.JobID,
		BatchIndex:         d.BatchIndex,
		Category:           string(d.Category),
		Batch:              batch,
		Narrative:          d.Narrative,
		RiskGrade:          string(d.RiskGrade),
		RecommendedAction:  d.RecommendedAction,
		CitedRegulationIDs: pq.StringArray(d.CitedRegulationIDs),
		ReviewStatus:       string(d.ReviewStatus),
		RevisionCount:      d.RevisionCount,
		Grounded:           d.Grounded,
		Marker:             d.Marker,
		ReviewNotes:        pq.StringArray(d.ReviewNotes),
		RenderedText:       d.RenderedText,
		CreatedAt:          d.CreatedAt,
		FinalizedAt:        d.FinalizedAt,
	}, nil
}

func (m *documentModel) toEntity() (*entity.InspectionDocument, error) {
	d := &entity.InspectionDocument{
		ID:                 m.ID,
		Serial:             m.Serial,
		JobID:              m.JobID,
		BatchIndex:         m.BatchIndex,
		Category:           entity.Category(m.Category),
		Narrative:          m.Narrative,
		RiskGrade:          entity.RiskGrade(m.RiskGrade),
		RecommendedAction:  m.RecommendedAction,
		CitedRegulationIDs: []string(m.CitedRegulationIDs),
		ReviewStatus:       entity.ReviewStatus(m.ReviewStatus),
		RevisionCount:      m.RevisionCount,
		Grounded:           m.Grounded,
		Marker:             m.Marker,
		ReviewNotes:        []string(m.ReviewNotes),
		RenderedText:       m.RenderedText,
		CreatedAt:          m.CreatedAt,
		FinalizedAt:        m.FinalizedAt,
	}
	if len(m.Batch) > 0 {
		if err := json.Unmarshal(m.Batch, &d.Batch); err != nil {
			return nil, fmt.Errorf("failed to decode batch of %s: %w", m.ID, err)
		}
	}
	return d, nil
}

// jobModel pipeline_jobs 表
type jobModel struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	Status      string     `gorm:"type:varchar(16);index;not null"`
	Category    string     `gorm:"type:varchar(32)"`
	BatchCount  int        `gorm:"not null;default:0"`
	Processed   int        `gorm:"not null;default:0"`
	Approved    int        `gorm:"not null;default:0"`
	Unresolved  int        `gorm:"not null;default:0"`
	Failed      int        `gorm:"not null;default:0"`
	ArchiveKey  string     `gorm:"type:varchar(512)"`
	Error       string     `gorm:"type:text"`
	SubmittedBy string     `gorm:"type:varchar(128)"`
	CreatedAt   time.Time  `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (jobModel) TableName() string { return "pipeline_jobs" }

func toJobModel(j *entity.PipelineJob) *jobModel {
	return &jobModel{
		ID:          j.ID,
		Status:      string(j.Status),
		Category:    string(j.Category),
		BatchCount:  j.BatchCount,
		Processed:   j.Processed,
		Approved:    j.Approved,
		Unresolved:  j.Unresolved,
		Failed:      j.Failed,
		ArchiveKey:  j.ArchiveKey,
		Error:       j.Error,
		SubmittedBy: j.SubmittedBy,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (m *jobModel) toEntity() *entity.PipelineJob {
	return &entity.PipelineJob{
		ID:          m.ID,
		Status:      entity.JobStatus(m.Status),
		Category:    entity.Category(m.Category),
		BatchCount:  m.BatchCount,
		Processed:   m.Processed,
		Approved:    m.Approved,
		Unresolved:  m.Unresolved,
		Failed:      m.Failed,
		ArchiveKey:  m.ArchiveKey,
		Error:       m.Error,
		SubmittedBy: m.SubmittedBy,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
}
