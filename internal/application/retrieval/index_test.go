package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/application/retrieval/retrievaltest"
	"rail-inspection-ai-api/internal/domain/entity"
	apperrors "rail-inspection-ai-api/pkg/errors"
)

const regulationText = `철도 시설물 유지보수 규정

[규정 ID]: RAIL-MNT-001
[점검 대상]: 레일
[결함 등급]: X2

레일 마모가 기준을 초과하면 10일 이내 교체한다.

[규정 ID]: RAIL-MNT-002
[점검 대상]: 애자
애자 균열은 지속 모니터링한다.`

func newTestIndex(t *testing.T, split bool) (*Index, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	emb := retrievaltest.NewKeywordEmbedder("레일", "마모", "애자", "균열", "둥지")
	opts := Options{ChunkSize: 200, ChunkOverlap: 50, EmbeddingBatchSize: 2}
	if split {
		return NewRegulationIndex(emb, store, opts), store
	}
	return NewReportIndex(emb, store, opts), store
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, true)

	n1, err := idx.Ingest(ctx, Document{ID: "reg-doc", Text: regulationText})
	require.NoError(t, err)
	docs1, err := idx.Documents(ctx)
	require.NoError(t, err)

	n2, err := idx.Ingest(ctx, Document{ID: "reg-doc", Text: regulationText})
	require.NoError(t, err)
	docs2, err := idx.Documents(ctx)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	assert.Equal(t, docs1, docs2)
	require.Len(t, docs2, 1)
	assert.Equal(t, n1, docs2[0].Chunks)
	assert.Equal(t, []string{"RAIL-MNT-001", "RAIL-MNT-002", "reg-doc"}, docs2[0].SourceIDs)
}

func TestQuerySortedAndAboveThreshold(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, true)
	_, err := idx.Ingest(ctx, Document{ID: "reg-doc", Text: regulationText})
	require.NoError(t, err)

	res, err := idx.Query(ctx, "레일 마모", QueryParams{TopK: 5, Threshold: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "RAIL-MNT-001", res[0].SourceID)
	assert.Equal(t, entity.TierRegulation, res[0].Tier)
	assert.Equal(t, "레일", res[0].Metadata["점검_대상"])
	assert.Equal(t, "X2", res[0].Metadata["결함_등급"])
	for i, r := range res {
		assert.GreaterOrEqual(t, r.Score, 0.1)
		assert.LessOrEqual(t, r.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, res[i-1].Score, r.Score)
		}
	}

	none, err := idx.Query(ctx, "둥지", QueryParams{TopK: 5, Threshold: 0.1})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, false)
	for _, id := range []string{"rpt-c", "rpt-a", "rpt-b"} {
		_, err := idx.Ingest(ctx, Document{ID: id, Text: "레일 마모 보고서"})
		require.NoError(t, err)
	}

	res, err := idx.Query(ctx, "레일 마모", QueryParams{TopK: 2, Threshold: 0})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "rpt-c", res[0].SourceID)
	assert.Equal(t, "rpt-a", res[1].SourceID)
	assert.Equal(t, res[0].Score, res[1].Score)
}

func TestQueryBeforeIngestIsEmpty(t *testing.T) {
	idx, _ := newTestIndex(t, false)
	res, err := idx.Query(context.Background(), "레일", QueryParams{TopK: 3, Threshold: 0.3})
	require.NoError(t, err)
	assert.Empty(t, res)

	empty, err := idx.Empty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestQueryRejectsBadInput(t *testing.T) {
	idx, _ := newTestIndex(t, false)
	_, err := idx.Query(context.Background(), "  ", QueryParams{TopK: 3})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = idx.Query(context.Background(), "레일", QueryParams{TopK: 0})
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = idx.Query(context.Background(), "레일", QueryParams{TopK: 1, Threshold: 1.5})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEmbeddingFailureSurfacesAsAppError(t *testing.T) {
	emb := retrievaltest.NewKeywordEmbedder("레일")
	emb.Err = errors.New("upstream 503")
	idx := NewReportIndex(emb, NewMemoryStore(), Options{})

	_, err := idx.Query(context.Background(), "레일", QueryParams{TopK: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmbeddingFailed))
}

func TestCategoryFilterAndDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, false)
	_, err := idx.Ingest(ctx, Document{ID: "r1", Text: "레일 마모", Category: entity.CategoryRail})
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, Document{ID: "i1", Text: "애자 균열 레일", Category: entity.CategoryInsulator})
	require.NoError(t, err)

	res, err := idx.Query(ctx, "레일", QueryParams{TopK: 5, Category: entity.CategoryInsulator})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "i1", res[0].SourceID)

	require.NoError(t, idx.Delete(ctx, "i1"))
	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)

	require.NoError(t, idx.Clear(ctx))
	res, err = idx.Query(ctx, "레일", QueryParams{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestConcurrentQueriesAndIngest(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, false)
	_, err := idx.Ingest(ctx, Document{ID: "seed", Text: "레일 마모"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			_, err := idx.Ingest(ctx, Document{ID: fmt.Sprintf("doc-%d", w), Text: "애자 균열"})
			assert.NoError(t, err)
		}(w)
		go func() {
			defer wg.Done()
			for q := 0; q < 10; q++ {
				res, err := idx.Query(ctx, "레일 마모", QueryParams{TopK: 3, Threshold: 0.5})
				assert.NoError(t, err)
				assert.NotEmpty(t, res)
			}
		}()
	}
	wg.Wait()

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Documents)
}
