package inspection

import (
	"context"
	"encoding/json"
	"strings"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/application/retry"
	"rail-inspection-ai-api/internal/domain/entity"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	wfnode "rail-inspection-ai-api/internal/workflow/node"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
)

const defaultContextRunes = 1000

// GeneratorConfig 生成器参数
type GeneratorConfig struct {
	Query        retrieval.QueryParams
	Model        wfmodel.ModelParams
	Retry        retry.Policy
	ContextRunes int
}

// Generator 基于规程检索结果生成报告草稿
type Generator struct {
	regs    RegulationSearcher
	drafter Drafter
	cfg     GeneratorConfig
}

// NewGenerator 创建生成器
func NewGenerator(regs RegulationSearcher, drafter Drafter, cfg GeneratorConfig) *Generator {
	if cfg.Query.TopK <= 0 {
		cfg.Query.TopK = 5
	}
	if cfg.ContextRunes <= 0 {
		cfg.ContextRunes = defaultContextRunes
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Generator{regs: regs, drafter: drafter, cfg: cfg}
}

// Generate 为批次生成草稿。每个缺陷类型检索一次规程；
// 所有缺陷均无命中时直接给出 E 级未溯源草稿，不调用模型。
func (g *Generator) Generate(ctx context.Context, batch *entity.DetectionBatch) (*entity.InspectionDocument, error) {
	if batch.IsEmpty() {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "detection batch is empty")
	}
	doc := entity.NewInspectionDocument(*batch)
	ctx = logger.WithContext(ctx, logger.DocumentIDKey, doc.ID)

	grounding := g.ground(ctx, batch)
	if len(grounding) == 0 {
		logger.Warn(ctx, "no regulation matched any defect, emitting ungrounded draft",
			"frame_id", batch.FrameID,
		)
		markUngrounded(doc)
		return doc, nil
	}

	out, err := g.draft(ctx, doc, grounding, "")
	if err != nil {
		return nil, err
	}
	applyDraft(doc, out)
	return doc, nil
}

// Revise 按评审意见重写草稿；返回的新文档仅承载修订内容，由评审器合并
func (g *Generator) Revise(ctx context.Context, doc *entity.InspectionDocument, feedback string) (*entity.InspectionDocument, error) {
	rev := doc.Clone()
	grounding := g.ground(ctx, &doc.Batch)
	if len(grounding) == 0 {
		markUngrounded(rev)
		return rev, nil
	}
	out, err := g.draft(ctx, doc, grounding, feedback)
	if err != nil {
		return nil, err
	}
	applyDraft(rev, out)
	return rev, nil
}

// ground 按缺陷类型检索并按 chunk 去重，保持首次出现顺序。
// 检索失败的缺陷视为无命中。
func (g *Generator) ground(ctx context.Context, batch *entity.DetectionBatch) []entity.RetrievalResult {
	seen := make(map[string]struct{})
	var out []entity.RetrievalResult
	for _, group := range batch.DefectGroups() {
		results, err := g.regs.Query(ctx, group.Query(), g.cfg.Query)
		if err != nil {
			logger.Warn(ctx, "regulation query failed, treating defect as unmatched",
				"defect", group.Key,
				"error", err.Error(),
			)
			continue
		}
		for _, r := range results {
			key := r.ChunkID
			if key == "" {
				key = r.SourceID + "\x00" + r.Text
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func (g *Generator) draft(ctx context.Context, doc *entity.InspectionDocument, grounding []entity.RetrievalResult, feedback string) (*draftResult, error) {
	allowed := entity.SourceIDs(grounding)
	in := &wfmodel.DraftInput{
		ModelParams:       g.cfg.Model,
		Serial:            doc.Serial,
		Category:          string(doc.Category),
		DetectionsBlock:   wfnode.BuildDetectionsBlock(&doc.Batch),
		EnvironmentBlock:  wfnode.BuildEnvironmentBlock(&doc.Batch),
		RegulationContext: retrieval.BuildPromptContext(grounding, len(grounding), g.cfg.ContextRunes),
		AllowedIDs:        allowed,
	}
	if strings.TrimSpace(feedback) != "" {
		in.PreviousDraft = draftJSON(doc)
		in.Feedback = feedback
	}

	res, err := retry.Value(ctx, g.cfg.Retry, "inspection.draft", func(ctx context.Context) (*draftResult, error) {
		out, err := g.drafter.Invoke(ctx, in)
		if err != nil {
			return nil, err
		}
		return validateDraft(out, allowed)
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeGenerationFailed) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "draft generation failed")
	}
	return res, nil
}

type draftResult struct {
	Narrative string
	Grade     entity.RiskGrade
	Citations []string
}

// validateDraft 校验模型输出：等级合法、正文非空、引用与检索结果取交集后非空
func validateDraft(out *wfmodel.DraftOutput, allowed []string) (*draftResult, error) {
	if out == nil {
		return nil, apperrors.New(apperrors.CodeGenerationFailed, "empty draft output")
	}
	grade, err := entity.ParseRiskGrade(out.RiskGrade)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "draft has invalid risk grade")
	}
	narrative := strings.TrimSpace(out.Narrative)
	if narrative == "" {
		return nil, apperrors.New(apperrors.CodeGenerationFailed, "draft narrative is empty")
	}
	citations := intersectIDs(out.CitedRegulationIDs, allowed)
	if len(citations) == 0 {
		return nil, apperrors.New(apperrors.CodeGenerationFailed, "risk grade emitted without a retrieved regulation citation").
			WithDetail(strings.Join(out.CitedRegulationIDs, ","))
	}
	if rationale := strings.TrimSpace(out.GradeRationale); rationale != "" && !strings.Contains(narrative, rationale) {
		narrative += "\n\n" + rationale
	}
	return &draftResult{Narrative: narrative, Grade: grade, Citations: citations}, nil
}

func applyDraft(doc *entity.InspectionDocument, res *draftResult) {
	doc.Narrative = res.Narrative
	doc.RiskGrade = res.Grade
	doc.RecommendedAction = res.Grade.Action()
	doc.SetCitations(res.Citations)
	doc.Grounded = true
	doc.Marker = ""
}

func markUngrounded(doc *entity.InspectionDocument) {
	doc.Narrative = ungroundedNarrative(&doc.Batch)
	doc.RiskGrade = entity.GradeE
	doc.RecommendedAction = entity.GradeE.Action()
	doc.CitedRegulationIDs = nil
	doc.Grounded = false
	doc.Marker = entity.UngroundedMarker
}

func ungroundedNarrative(b *entity.DetectionBatch) string {
	return "관련 규정을 찾지 못해 위험도를 판정하지 않았습니다. 탐지 결함: " +
		strings.Join(defectKeys(b), ", ") + ". 담당자의 수동 검토가 필요합니다."
}

func defectKeys(b *entity.DetectionBatch) []string {
	groups := b.DefectGroups()
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Key)
	}
	return out
}

// intersectIDs 保留 cited 中出现在 allowed 里的 ID
func intersectIDs(cited, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(cited))
	for _, id := range cited {
		id = strings.TrimSpace(id)
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return entity.NormalizeIDs(out)
}

// editableDraft 模型与编辑器可见的草稿字段
type editableDraft struct {
	Narrative          string   `json:"narrative"`
	RiskGrade          string   `json:"risk_grade"`
	RecommendedAction  string   `json:"recommended_action"`
	CitedRegulationIDs []string `json:"cited_regulation_ids"`
}

func toEditable(doc *entity.InspectionDocument) editableDraft {
	ids := doc.CitedRegulationIDs
	if ids == nil {
		ids = []string{}
	}
	return editableDraft{
		Narrative:          doc.Narrative,
		RiskGrade:          string(doc.RiskGrade),
		RecommendedAction:  doc.RecommendedAction,
		CitedRegulationIDs: ids,
	}
}

func draftJSON(doc *entity.InspectionDocument) string {
	b, err := json.MarshalIndent(toEditable(doc), "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
