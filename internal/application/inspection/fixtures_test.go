package inspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/application/retrieval/retrievaltest"
	"rail-inspection-ai-api/internal/application/retry"
	"rail-inspection-ai-api/internal/domain/entity"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
)

const wearRegulation = `[규정 ID]: SCENARIO_rail_1
[점검 대상]: 레일

레일 마모가 허용 기준을 초과하면 단기 파손 발전 결함(X2)으로 분류하며 10일 이내 교체한다.

[규정 ID]: SCENARIO_insulator_1
[점검 대상]: 애자

애자 균열은 요주의 결함(O)으로 지속 모니터링한다.`

type drafterFunc func(ctx context.Context, in *wfmodel.DraftInput) (*wfmodel.DraftOutput, error)

func (f drafterFunc) Invoke(ctx context.Context, in *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
	return f(ctx, in)
}

type judgeFunc func(ctx context.Context, in *wfmodel.ReviewInput) (*wfmodel.ReviewVerdict, error)

func (f judgeFunc) Invoke(ctx context.Context, in *wfmodel.ReviewInput) (*wfmodel.ReviewVerdict, error) {
	return f(ctx, in)
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Multiplier: 1}
}

func newRegulationIndex(t *testing.T) *retrieval.Index {
	t.Helper()
	emb := retrievaltest.NewKeywordEmbedder("레일", "마모", "애자", "균열", "둥지")
	idx := retrieval.NewRegulationIndex(emb, retrieval.NewMemoryStore(), retrieval.Options{ChunkSize: 300, ChunkOverlap: 50})
	_, err := idx.Ingest(context.Background(), retrieval.Document{ID: "maintenance-rules", Text: wearRegulation})
	require.NoError(t, err)
	return idx
}

func newReportIndex() *retrieval.Index {
	emb := retrievaltest.NewKeywordEmbedder("레일", "마모", "애자", "균열", "둥지")
	return retrieval.NewReportIndex(emb, retrieval.NewMemoryStore(), retrieval.Options{ChunkSize: 300, ChunkOverlap: 50})
}

func wearBatch(frame string) entity.DetectionBatch {
	return entity.DetectionBatch{
		FrameID:  frame,
		Category: entity.CategoryRail,
		Route:    "고속철도",
		Location: "영암1",
		Detections: []entity.Detection{{
			ClassID:       3,
			Category:      entity.CategoryRail,
			RailType:      "고속철도",
			DefectName:    "레일",
			DefectDetail:  "마모",
			Confidence:    0.95,
			BoundingBox:   entity.BoundingBox{10, 10, 120, 80},
			SourceFrameID: frame,
		}},
	}
}

func nestBatch(frame string) entity.DetectionBatch {
	b := wearBatch(frame)
	b.Category = entity.CategoryNest
	b.Detections[0].Category = entity.CategoryNest
	b.Detections[0].DefectName = "조류둥지"
	b.Detections[0].DefectDetail = "탐지"
	return b
}

func x2Draft() *wfmodel.DraftOutput {
	return &wfmodel.DraftOutput{
		DefectType:         "레일 마모",
		DefectState:        "허용 기준 초과 마모",
		Narrative:          "레일 두부에 허용 기준을 초과하는 마모가 확인되었습니다 (신뢰도 95.0%).",
		RiskGrade:          "X2",
		RecommendedAction:  "10일 이내 해당 구간 레일 교체",
		CitedRegulationIDs: []string{"SCENARIO_rail_1"},
	}
}

func newGenerator(t *testing.T, d Drafter) *Generator {
	t.Helper()
	return NewGenerator(newRegulationIndex(t), d, GeneratorConfig{
		Query: retrieval.QueryParams{TopK: 5, Threshold: 0.1},
		Retry: fastRetry(),
	})
}
