package inspection

import (
	"context"
	"fmt"
	"strings"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/application/retry"
	"rail-inspection-ai-api/internal/domain/entity"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	wfnode "rail-inspection-ai-api/internal/workflow/node"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/metrics"
)

const defaultMaxRevisions = 3

const (
	ungroundedNote = "규정 근거 없음: 수동 검토 필요"
	regroundNote   = "규정 재검색 결과를 근거로 초안을 다시 작성했습니다."
)

// ReviewerConfig 评审器参数
type ReviewerConfig struct {
	// MaxRevisions 最大修订次数，评审调用最多 MaxRevisions+1 次
	MaxRevisions int
	Query        retrieval.QueryParams
	Model        wfmodel.ModelParams
	Retry        retry.Policy
	ContextRunes int
}

// Reviser 按评审意见重写草稿
type Reviser interface {
	Revise(ctx context.Context, doc *entity.InspectionDocument, feedback string) (*entity.InspectionDocument, error)
}

// Reviewer 对照规程评审草稿，有界修订循环：
// draft -> approved | draft(revision+1) -> ... -> unresolved
type Reviewer struct {
	regs    RegulationSearcher
	judge   Judge
	reviser Reviser
	cfg     ReviewerConfig
}

// NewReviewer 创建评审器；MaxRevisions 为负时按 0 处理
func NewReviewer(regs RegulationSearcher, judge Judge, reviser Reviser, cfg ReviewerConfig) *Reviewer {
	if cfg.MaxRevisions < 0 {
		cfg.MaxRevisions = 0
	}
	if cfg.Query.TopK <= 0 {
		cfg.Query.TopK = 3
	}
	if cfg.ContextRunes <= 0 {
		cfg.ContextRunes = defaultContextRunes
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Reviewer{regs: regs, judge: judge, reviser: reviser, cfg: cfg}
}

// Review 执行评审循环直至 approved 或 unresolved。
// 超过修订上限时文档转为 unresolved，并返回 ReviewLoopExceeded；
// 评审或修订调用失败时文档保持 draft 并返回错误。
// 未溯源草稿先回查规程，有命中则重新生成并占用一次修订，仍无依据时转为 unresolved。
func (r *Reviewer) Review(ctx context.Context, doc *entity.InspectionDocument) (*entity.InspectionDocument, error) {
	if doc == nil {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "document is nil")
	}
	if doc.IsFrozen() {
		return doc, entity.ErrDocumentFrozen
	}
	ctx = logger.WithContext(ctx, logger.DocumentIDKey, doc.ID)

	maxCalls := r.cfg.MaxRevisions + 1
	for call := 1; call <= maxCalls; call++ {
		evidence := r.evidence(ctx, doc)

		if !doc.Grounded {
			regrounded, err := r.reground(ctx, doc, evidence, call < maxCalls)
			if err != nil || !regrounded {
				return doc, err
			}
			continue
		}

		verdict, err := retry.Value(ctx, r.cfg.Retry, "inspection.review", func(ctx context.Context) (*wfmodel.ReviewVerdict, error) {
			v, err := r.judge.Invoke(ctx, r.reviewInput(doc, evidence))
			if err == nil && v == nil {
				err = apperrors.New(apperrors.CodeGenerationFailed, "empty review verdict")
			}
			return v, err
		})
		if err != nil {
			return doc, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "review call failed")
		}

		violations := localViolations(doc)
		if verdict.Approved && len(violations) == 0 {
			metrics.ReviewVerdictTotal.WithLabelValues("approve").Inc()
			if err := doc.Approve(); err != nil {
				return doc, err
			}
			metrics.ReviewRevisions.Observe(float64(doc.RevisionCount))
			logger.Info(ctx, "draft approved", "revision_count", doc.RevisionCount, "review_calls", call)
			return doc, nil
		}
		metrics.ReviewVerdictTotal.WithLabelValues("revise").Inc()

		feedback := composeFeedback(verdict, violations)
		if call == maxCalls {
			if err := doc.MarkUnresolved(feedback); err != nil {
				return doc, err
			}
			break
		}

		rev, err := r.revise(ctx, doc, verdict, evidence, feedback)
		if err != nil {
			return doc, err
		}
		if err := doc.ApplyRevision(rev, feedback); err != nil {
			return doc, err
		}
		logger.Debug(ctx, "draft revised", "revision_count", doc.RevisionCount)
	}

	metrics.ReviewRevisions.Observe(float64(doc.RevisionCount))
	logger.Warn(ctx, "review loop exceeded, document unresolved",
		"revision_count", doc.RevisionCount,
		"max_revisions", r.cfg.MaxRevisions,
	)
	return doc, apperrors.Newf(apperrors.CodeReviewLoopExceeded,
		"document %s not approved after %d revisions", doc.Serial, doc.RevisionCount)
}

// reground 处理未溯源草稿：生成阶段的检索可能只是暂时失败，回查到规程时重新生成一次。
// 返回 false 表示文档已转为 unresolved（仍无规程依据或已无修订次数）。
func (r *Reviewer) reground(ctx context.Context, doc *entity.InspectionDocument, evidence []entity.RetrievalResult, canRevise bool) (bool, error) {
	if len(evidence) > 0 && canRevise && r.reviser != nil {
		rev, err := r.reviser.Revise(ctx, doc, regroundNote)
		if err != nil {
			return false, err
		}
		if rev.Grounded {
			if err := doc.ApplyRevision(rev, regroundNote); err != nil {
				return false, err
			}
			logger.Info(ctx, "ungrounded draft regenerated with regulations", "revision_count", doc.RevisionCount)
			return true, nil
		}
	}
	if err := doc.MarkUnresolved(ungroundedNote); err != nil {
		return false, err
	}
	metrics.ReviewRevisions.Observe(float64(doc.RevisionCount))
	return false, nil
}

// revise 优先应用评审给出的 patch，失败时按反馈整体重写
func (r *Reviewer) revise(ctx context.Context, doc *entity.InspectionDocument, verdict *wfmodel.ReviewVerdict, evidence []entity.RetrievalResult, feedback string) (*entity.InspectionDocument, error) {
	if len(verdict.Patch) > 0 {
		allowed := append(entity.SourceIDs(evidence), doc.CitedRegulationIDs...)
		rev, err := ApplyPatch(doc, verdict.Patch, allowed)
		if err == nil {
			return rev, nil
		}
		logger.Warn(ctx, "review patch rejected, regenerating draft", "error", err.Error())
	}
	if r.reviser == nil {
		return nil, apperrors.New(apperrors.CodeGenerationFailed, "no reviser configured")
	}
	return r.reviser.Revise(ctx, doc, feedback)
}

// evidence 按引用规程 ID 与缺陷词回查规程；无引用时仅用缺陷词
func (r *Reviewer) evidence(ctx context.Context, doc *entity.InspectionDocument) []entity.RetrievalResult {
	results, err := r.regs.Query(ctx, reviewQuery(doc), r.cfg.Query)
	if err != nil {
		logger.Warn(ctx, "review regulation query failed", "error", err.Error())
		return nil
	}
	return results
}

func reviewQuery(doc *entity.InspectionDocument) string {
	parts := make([]string, 0, len(doc.CitedRegulationIDs)+4)
	parts = append(parts, doc.CitedRegulationIDs...)
	for _, key := range defectKeys(&doc.Batch) {
		parts = append(parts, key+" 조치 기준")
	}
	if len(parts) == 0 {
		return "철도 결함 점검 기준"
	}
	return strings.Join(parts, " ")
}

func (r *Reviewer) reviewInput(doc *entity.InspectionDocument, evidence []entity.RetrievalResult) *wfmodel.ReviewInput {
	return &wfmodel.ReviewInput{
		ModelParams:       r.cfg.Model,
		DraftJSON:         draftJSON(doc),
		DetectionsBlock:   wfnode.BuildDetectionsBlock(&doc.Batch),
		RegulationContext: retrieval.BuildPromptContext(evidence, len(evidence), r.cfg.ContextRunes),
		ActionTable:       wfnode.BuildActionTableBlock(),
	}
}

// localViolations 不依赖模型的硬性检查
func localViolations(doc *entity.InspectionDocument) []string {
	var out []string
	if !doc.RiskGrade.Valid() {
		out = append(out, fmt.Sprintf("위험도 등급 %q 은(는) 허용되지 않습니다 (E/O/X1/X2/S).", doc.RiskGrade))
		return out
	}
	if !doc.ActionConsistent() {
		out = append(out, fmt.Sprintf("권장 조치내용이 %s 등급 기준(%s)과 일치하지 않습니다.", doc.RiskGrade, doc.RiskGrade.ActionKo()))
	}
	if !doc.HasCitations() {
		out = append(out, "위험도 등급을 뒷받침하는 규정 인용이 없습니다.")
	}
	return out
}

func composeFeedback(verdict *wfmodel.ReviewVerdict, violations []string) string {
	parts := make([]string, 0, len(violations)+4)
	if fb := strings.TrimSpace(verdict.Feedback); fb != "" {
		parts = append(parts, fb)
	}
	if !verdict.GradeConsistent {
		parts = append(parts, "위험도 등급이 규정 내용과 일치하지 않습니다.")
	}
	if !verdict.ActionConsistent {
		parts = append(parts, "권장 조치내용이 등급별 조치 기준과 일치하지 않습니다.")
	}
	if !verdict.NarrativeConsistent {
		parts = append(parts, "결함 서술이 탐지 결과와 일치하지 않습니다.")
	}
	parts = append(parts, violations...)
	if len(parts) == 0 {
		parts = append(parts, "검토자가 승인하지 않았습니다.")
	}
	return strings.Join(dedupe(parts), "\n")
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
