package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/application/chat"
	"rail-inspection-ai-api/internal/application/inspection"
	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/domain/entity"
	"rail-inspection-ai-api/internal/domain/repository"
	"rail-inspection-ai-api/internal/infrastructure/messaging"
	apperrors "rail-inspection-ai-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeEngine struct {
	got chat.Query
	err error
}

func (f *fakeEngine) Ask(_ context.Context, q chat.Query) (*entity.ChatAnswer, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return &entity.ChatAnswer{AnswerText: "답변", CitedRegulationIDs: []string{"REG-1"}}, nil
}

func (f *fakeEngine) Summary(context.Context, entity.Category) ([]repository.GradeCount, error) {
	return []repository.GradeCount{{RiskGrade: entity.GradeE, Count: 2}, {RiskGrade: entity.GradeS, Count: 1}}, nil
}

func TestChatHandler_Ask(t *testing.T) {
	eng := &fakeEngine{}
	h := NewChatHandler(eng)
	r := gin.New()
	r.POST("/ask", h.Ask)

	w := serve(r, http.MethodPost, "/ask", `{"question":"레일 균열 기준은?","category":"RAIL"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.CategoryRail, eng.got.Category)
	assert.Contains(t, w.Body.String(), `"cited_regulation_ids":["REG-1"]`)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/ask", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/ask", `{"question":"q","category":"bridge"}`).Code)
}

func TestChatHandler_AskMapsAppError(t *testing.T) {
	h := NewChatHandler(&fakeEngine{err: apperrors.New(apperrors.CodeInvalidParam, "question is required")})
	r := gin.New()
	r.POST("/ask", h.Ask)

	w := serve(r, http.MethodPost, "/ask", `{"question":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"1001"`)
}

func TestChatHandler_Summary(t *testing.T) {
	r := gin.New()
	r.GET("/summary", NewChatHandler(&fakeEngine{}).Summary)

	w := serve(r, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp.Data.Total)
}

type fakeRunner struct {
	processed int
	failed    string
}

func (f *fakeRunner) Submit(_ context.Context, category entity.Category, n int, by string) (*entity.PipelineJob, error) {
	return entity.NewPipelineJob(category, n, by), nil
}

func (f *fakeRunner) Process(_ context.Context, category entity.Category, batches []*inspection.DecodedBatch, by string) (*inspection.JobResult, error) {
	f.processed = len(batches)
	job := entity.NewPipelineJob(category, len(batches), by)
	out := make([]inspection.BatchOutcome, 0, len(batches))
	for i, b := range batches {
		out = append(out, inspection.BatchOutcome{Index: i, FrameID: b.Batch.FrameID, Err: errors.New("llm down")})
	}
	return &inspection.JobResult{Job: job, Outcomes: out}, nil
}

func (f *fakeRunner) Fail(_ context.Context, jobID string, _ error) { f.failed = jobID }

type fakePublisher struct {
	msg *messaging.InspectionJobMessage
	err error
}

func (p *fakePublisher) PublishInspectionJob(_ context.Context, m *messaging.InspectionJobMessage) (string, error) {
	p.msg = m
	return "1-0", p.err
}

const framesBody = `{"category":"rail","frames":[{"frame_index":3,"image_file":"rail_a.jpg","detections":[]}]}`

func TestInspectionHandler_Run(t *testing.T) {
	runner := &fakeRunner{}
	r := gin.New()
	r.POST("/inspections", NewInspectionHandler(runner, nil).Run)

	w := serve(r, http.MethodPost, "/inspections", framesBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.processed)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
	assert.Contains(t, w.Body.String(), `"error":"llm down"`)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/inspections", `{"frames":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/inspections", `{"frames":{"x":1}}`).Code)

	mixed := `{"category":"rail","frames":[{"frame_index":-1,"image_file":"rail_b.jpg"},{"frame_index":2,"image_file":"rail_c.jpg","detections":[]}]}`
	w = serve(r, http.MethodPost, "/inspections", mixed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, runner.processed)
}

func TestInspectionHandler_Submit(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	r := gin.New()
	r.POST("/async", NewInspectionHandler(runner, pub).Submit)

	w := serve(r, http.MethodPost, "/async", framesBody)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, pub.msg)
	assert.Equal(t, "rail", pub.msg.Category)
	assert.NotEmpty(t, pub.msg.JobID)

	pub.err = errors.New("stream down")
	w = serve(r, http.MethodPost, "/async", framesBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pub.msg.JobID, runner.failed)
}

func TestInspectionHandler_SubmitWithoutPublisher(t *testing.T) {
	r := gin.New()
	r.POST("/async", NewInspectionHandler(&fakeRunner{}, nil).Submit)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/async", framesBody).Code)
}

type fakeIndex struct {
	ingested []retrieval.Document
	deleted  []string
	cleared  bool
}

func (f *fakeIndex) Ingest(_ context.Context, doc retrieval.Document) (int, error) {
	f.ingested = append(f.ingested, doc)
	return 2, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) Clear(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeIndex) Documents(context.Context) ([]retrieval.DocumentInfo, error) {
	return []retrieval.DocumentInfo{{DocumentID: "doc-1", Chunks: 2}}, nil
}

func (f *fakeIndex) Stats(context.Context) (*retrieval.Stats, error) {
	return &retrieval.Stats{Namespace: entity.NamespaceRegulations, Documents: 1, Chunks: 2}, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) InvalidateChatAnswers(context.Context) error {
	c.n++
	return nil
}

func TestRegulationHandler(t *testing.T) {
	idx := &fakeIndex{}
	inv := &countingInvalidator{}
	h := NewRegulationHandler(idx, inv)
	r := gin.New()
	r.POST("/regs", h.Ingest)
	r.GET("/regs", h.List)
	r.DELETE("/regs", h.Clear)
	r.DELETE("/regs/:rid", h.Delete)

	w := serve(r, http.MethodPost, "/regs", `{"id":"doc-1","text":"[규정 ID]: REG-1\n레일 균열","category":"rail"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, idx.ingested, 1)
	assert.Equal(t, entity.CategoryRail, idx.ingested[0].Category)
	assert.Contains(t, w.Body.String(), `"chunks":2`)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/regs", `{"id":"x"}`).Code)
	assert.Contains(t, serve(r, http.MethodGet, "/regs", "").Body.String(), `"doc-1"`)

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/regs/doc-1", "").Code)
	assert.Equal(t, []string{"doc-1"}, idx.deleted)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/regs", "").Code)
	assert.True(t, idx.cleared)
	assert.Equal(t, 3, inv.n)
}

type memDocs struct {
	repository.DocumentRepository
	doc *entity.InspectionDocument
}

func (m *memDocs) GetBySerial(_ context.Context, serial string) (*entity.InspectionDocument, error) {
	if m.doc != nil && m.doc.Serial == serial {
		return m.doc, nil
	}
	return nil, nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*entity.InspectionDocument, error) {
	if m.doc != nil && m.doc.ID == id {
		return m.doc, nil
	}
	return nil, nil
}

func TestReportHandler_Get(t *testing.T) {
	doc := entity.NewInspectionDocument(entity.DetectionBatch{Category: entity.CategoryRail})
	doc.RenderedText = "[일련번호]\n" + doc.Serial + "\n[위험도평가]\nO"
	r := gin.New()
	r.GET("/reports/:did", NewReportHandler(&memDocs{doc: doc}, nil).Get)

	w := serve(r, http.MethodGet, "/reports/"+doc.Serial, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sections"`)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/reports/"+doc.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/reports/RPT-20260101-ABCDEF", "").Code)
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler("test",
		Dependency{Name: "redis", Checker: stubChecker{}, Required: true},
		Dependency{Name: "postgres"},
		Dependency{Name: "milvus", Checker: stubChecker{err: errors.New("down")}},
	)
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := serve(r, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":{"status":"disabled"}`)
	assert.Contains(t, w.Body.String(), `"degraded"`)

	h = NewHealthHandler("test", Dependency{Name: "redis", Checker: stubChecker{err: errors.New("down")}, Required: true})
	r = gin.New()
	r.GET("/ready", h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/ready", "").Code)
}
