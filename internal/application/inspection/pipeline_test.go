package inspection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	apperrors "rail-inspection-ai-api/pkg/errors"
)

type memoryDocs struct {
	repository.DocumentRepository
	mu   sync.Mutex
	docs map[string]*entity.InspectionDocument
}

func (m *memoryDocs) Save(_ context.Context, doc *entity.InspectionDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string]*entity.InspectionDocument)
	}
	m.docs[doc.ID] = doc.Clone()
	return nil
}

type memoryArchive struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func (a *memoryArchive) Put(_ context.Context, key string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.keys == nil {
		a.keys = make(map[string][]byte)
	}
	a.keys[key] = data
	return "mem://" + key, nil
}

func newPipeline(t *testing.T, drafter Drafter, judge Judge, docs repository.DocumentRepository, reports ReportIngester) *Pipeline {
	t.Helper()
	gen := newGenerator(t, drafter)
	rev := newReviewer(t, gen, judge, 3)
	p, err := NewPipeline(gen, rev, docs, reports, PipelineConfig{Workers: 4})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func approvingJudge() Judge {
	return judgeFunc(func(context.Context, *wfmodel.ReviewInput) (*wfmodel.ReviewVerdict, error) {
		return approve(), nil
	})
}

func TestPipelinePreservesInputOrder(t *testing.T) {
	reports := newReportIndex()
	docs := &memoryDocs{}
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}), approvingJudge(), docs, reports)

	var batches []*DecodedBatch
	for i := 0; i < 12; i++ {
		batches = append(batches, &DecodedBatch{Batch: wearBatch(fmt.Sprintf("frame_%02d", i))})
	}

	var done sync.WaitGroup
	done.Add(len(batches))
	outcomes := p.Run(context.Background(), "job-1", batches, func(BatchOutcome) { done.Done() })
	done.Wait()

	require.Len(t, outcomes, 12)
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, fmt.Sprintf("frame_%02d", i), o.FrameID)
		require.NoError(t, o.Err)
		require.NotNil(t, o.Document)
		assert.Equal(t, i, o.Document.BatchIndex)
		assert.Equal(t, "job-1", o.Document.JobID)
		assert.Equal(t, OutcomeApproved, o.Status())
		assert.Contains(t, o.Document.RenderedText, "위험도 등급: X2")
	}
	assert.Len(t, docs.docs, 12)

	stats, err := reports.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Documents)
}

func TestPipelineEmptyBatchIsVacuous(t *testing.T) {
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		t.Error("model must not be called for an empty batch")
		return nil, nil
	}), approvingJudge(), nil, nil)

	out := p.RunOne(context.Background(), &DecodedBatch{Batch: entity.DetectionBatch{FrameID: "empty", Category: entity.CategoryRail}})
	assert.Nil(t, out.Document)
	assert.NoError(t, out.Err)
	assert.Equal(t, OutcomeEmpty, out.Status())
}

func TestPipelineAllRecordsRejectedIsValidationError(t *testing.T) {
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}), approvingJudge(), nil, nil)

	out := p.RunOne(context.Background(), &DecodedBatch{
		Batch:    entity.DetectionBatch{FrameID: "bad", Category: entity.CategoryRail},
		Rejected: []RecordError{{Index: 0, Reason: "cls_id is required"}},
	})
	assert.Nil(t, out.Document)
	assert.True(t, apperrors.HasCode(out.Err, apperrors.CodeValidationFailed))
}

func TestPipelineBatchFailureDoesNotAbortSiblings(t *testing.T) {
	reports := newReportIndex()
	p := newPipeline(t, drafterFunc(func(_ context.Context, in *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		if strings.Contains(in.DetectionsBlock, "frame_bad") {
			return nil, apperrors.Wrap(errors.New("upstream 503"), apperrors.CodeLLMCallFailed, "call failed")
		}
		return x2Draft(), nil
	}), approvingJudge(), nil, reports)

	batches := []*DecodedBatch{
		{Batch: wearBatch("frame_ok_1")},
		{Batch: wearBatch("frame_bad")},
		nil,
		{Batch: nestBatch("frame_nest")},
		{Batch: wearBatch("frame_ok_2")},
	}
	outcomes := p.Run(context.Background(), "job-2", batches, nil)
	require.Len(t, outcomes, 5)

	assert.Equal(t, OutcomeApproved, outcomes[0].Status())
	assert.Equal(t, OutcomeFailed, outcomes[1].Status())
	assert.Equal(t, "frame_bad", outcomes[1].FrameID)
	assert.True(t, apperrors.HasCode(outcomes[1].Err, apperrors.CodeGenerationFailed))
	assert.Equal(t, OutcomeFailed, outcomes[2].Status())
	assert.Equal(t, OutcomeUnresolved, outcomes[3].Status())
	assert.Equal(t, entity.UngroundedMarker, outcomes[3].Document.Marker)
	assert.Equal(t, OutcomeApproved, outcomes[4].Status())

	// 只有 approved 文档进入报告索引
	docs, err := reports.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestPipelineUndecodableFrameFailsAlone(t *testing.T) {
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}), approvingJudge(), nil, nil)

	detection := `{"cls_id": 3, "rail_type": "고속철도", "cls_name": "레일", "detail": "마모", "confidence": 0.95, "bbox_xyxy": [10, 20, 110, 90]}`
	frames := fmt.Sprintf(`[
	  {"frame_index": 0, "source_mp4": "run.mp4", "detections": [%[1]s]},
	  {"frame_index": -1, "source_mp4": "run.mp4", "detections": [%[1]s]},
	  {"frame_index": 2, "source_mp4": "run.mp4", "detections": [%[1]s]}
	]`, detection)
	batches, err := DecodeFrames([]byte(frames), entity.CategoryRail)
	require.NoError(t, err)

	outcomes := p.Run(context.Background(), "job-3", batches, nil)
	require.Len(t, outcomes, 3)
	assert.Equal(t, OutcomeApproved, outcomes[0].Status())
	assert.Equal(t, "run_0", outcomes[0].FrameID)

	assert.Equal(t, OutcomeFailed, outcomes[1].Status())
	assert.Nil(t, outcomes[1].Document)
	assert.Equal(t, "run_pos1", outcomes[1].FrameID)
	assert.ErrorContains(t, outcomes[1].Err, "frame_index must not be negative")

	assert.Equal(t, OutcomeApproved, outcomes[2].Status())
	assert.Equal(t, 2, outcomes[2].Index)
}

func TestPipelineSkipReviewLeavesDraft(t *testing.T) {
	gen := newGenerator(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}))
	reports := newReportIndex()
	p, err := NewPipeline(gen, nil, nil, reports, PipelineConfig{Workers: 1, SkipReview: true})
	require.NoError(t, err)
	defer p.Close()

	out := p.RunOne(context.Background(), &DecodedBatch{Batch: wearBatch("f1")})
	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeDraft, out.Status())
	empty, err := reports.Empty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestServiceExecuteArchivesBatchReport(t *testing.T) {
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}), approvingJudge(), nil, nil)
	archive := &memoryArchive{}
	svc := NewService(p, nil, archive)

	res, err := svc.Process(context.Background(), entity.CategoryRail, []*DecodedBatch{
		{Batch: wearBatch("a")},
		{Batch: entity.DetectionBatch{FrameID: "b", Category: entity.CategoryRail}},
	}, "op-1")
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatusCompleted, res.Job.Status)
	assert.Equal(t, 2, res.Job.Processed)
	assert.Equal(t, 1, res.Job.Approved)
	assert.True(t, strings.HasPrefix(res.Job.ArchiveKey, "mem://rail/선로_탐지_보고서_"))
	require.Len(t, archive.keys, 1)

	require.Len(t, res.Report.Reports, 2)
	item := res.Report.Reports[0]
	assert.Equal(t, 1, item.Index)
	assert.Equal(t, "X2", item.DocumentSections["위험도평가"][len("위험도 등급: "):])
	assert.Equal(t, OutcomeEmpty, res.Report.Reports[1].Status)
	assert.Equal(t, map[string]int{OutcomeApproved: 1, OutcomeEmpty: 1}, res.Report.Summary)
	assert.Equal(t, entity.GradeX2, res.Report.HighestGrade)
}

func TestBuildBatchReportHighestGrade(t *testing.T) {
	job := entity.NewPipelineJob(entity.CategoryRail, 3, "op-1")
	graded := func(g entity.RiskGrade, status entity.ReviewStatus) BatchOutcome {
		doc := entity.NewInspectionDocument(wearBatch("f"))
		doc.RiskGrade = g
		doc.ReviewStatus = status
		return BatchOutcome{Document: doc}
	}

	report := BuildBatchReport(job, []BatchOutcome{
		graded(entity.GradeO, entity.ReviewStatusApproved),
		graded(entity.GradeS, entity.ReviewStatusUnresolved),
		graded(entity.GradeX1, entity.ReviewStatusApproved),
	}, time.Now())
	assert.Equal(t, entity.GradeX1, report.HighestGrade)

	empty := BuildBatchReport(job, []BatchOutcome{{Err: errors.New("decode failed")}}, time.Now())
	assert.Empty(t, empty.HighestGrade)
}

type recordingJobs struct {
	repository.JobRepository
	mu       sync.Mutex
	created  int
	progress repository.JobProgress
	status   entity.JobStatus
	inTx     bool
}

type txKey struct{}

func (r *recordingJobs) Create(context.Context, *entity.PipelineJob) error {
	r.created++
	return nil
}

func (r *recordingJobs) MarkRunning(context.Context, string) error { return nil }

func (r *recordingJobs) UpdateProgress(_ context.Context, _ string, p repository.JobProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = p
	return nil
}

func (r *recordingJobs) Complete(ctx context.Context, _ string, status entity.JobStatus, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.inTx = ctx.Value(txKey{}) != nil
	return nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(context.WithValue(ctx, txKey{}, true))
}

func TestServiceFinalizesJobInTransaction(t *testing.T) {
	p := newPipeline(t, drafterFunc(func(context.Context, *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
		return x2Draft(), nil
	}), approvingJudge(), nil, nil)
	jobs := &recordingJobs{}
	tx := &fakeTx{}
	svc := NewService(p, jobs, nil).WithTransactor(tx)

	res, err := svc.Process(context.Background(), entity.CategoryRail, []*DecodedBatch{{Batch: wearBatch("a")}}, "op-1")
	require.NoError(t, err)

	assert.Equal(t, 1, jobs.created)
	assert.Equal(t, 1, tx.calls)
	assert.True(t, jobs.inTx)
	assert.Equal(t, entity.JobStatusCompleted, jobs.status)
	assert.Equal(t, repository.JobProgress{Processed: 1, Approved: 1}, jobs.progress)
	assert.Equal(t, 1, res.Job.Approved)
}

var _ ReportIngester = (*retrieval.Index)(nil)
