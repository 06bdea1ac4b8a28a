package model

import "encoding/json"

// DraftInput 报告草稿生成输入（首稿与按评审意见重写共用）
type DraftInput struct {
	ModelParams

	Serial            string
	Category          string
	DetectionsBlock   string
	EnvironmentBlock  string
	RegulationContext string
	AllowedIDs        []string

	// 重写时填写
	PreviousDraft string
	Feedback      string
}

// DraftOutput 模型输出的草稿结构
type DraftOutput struct {
	DefectType         string   `json:"defect_type"`
	DefectState        string   `json:"defect_state"`
	Narrative          string   `json:"narrative"`
	RiskGrade          string   `json:"risk_grade"`
	GradeRationale     string   `json:"grade_rationale"`
	RecommendedAction  string   `json:"recommended_action"`
	CitedRegulationIDs []string `json:"cited_regulation_ids"`

	Usage LLMUsageMeta `json:"-"`
}

// ReviewInput 评审输入
type ReviewInput struct {
	ModelParams

	DraftJSON         string
	DetectionsBlock   string
	RegulationContext string
	ActionTable       string
}

// ReviewVerdict 评审结论
type ReviewVerdict struct {
	Approved            bool            `json:"approved"`
	GradeConsistent     bool            `json:"grade_consistent"`
	ActionConsistent    bool            `json:"action_consistent"`
	NarrativeConsistent bool            `json:"narrative_consistent"`
	Feedback            string          `json:"feedback"`
	Patch               json.RawMessage `json:"patch,omitempty"`

	Usage LLMUsageMeta `json:"-"`
}
