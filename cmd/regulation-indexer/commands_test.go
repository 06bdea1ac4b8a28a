package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/application/retrieval"
	"rail-inspection-ai-api/internal/application/retrieval/retrievaltest"
	"rail-inspection-ai-api/internal/domain/entity"
)

type testEnv struct {
	index       *retrieval.Index
	invalidated int
	opened      []string
}

func newTestEnv() *testEnv {
	embedder := retrievaltest.NewKeywordEmbedder("레일", "균열", "애자", "둥지")
	return &testEnv{
		index: retrieval.NewRegulationIndex(embedder, retrieval.NewMemoryStore(), retrieval.Options{ChunkSize: 200, ChunkOverlap: 20}),
	}
}

func (e *testEnv) open(_ context.Context, opts *rootOptions) (*session, error) {
	e.opened = append(e.opened, opts.namespace)
	return &session{
		index: e.index,
		invalidate: func(context.Context) error {
			e.invalidated++
			return nil
		},
		close: func() {},
	}, nil
}

func run(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCommand(env.open)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestAndList(t *testing.T) {
	env := newTestEnv()
	path := writeFile(t, "rail-maintenance.txt", "[규정 R-1] 레일 균열은 즉시 보고한다.")

	out, err := run(t, env, "ingest", "--category", "rail", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rail-maintenance")
	assert.Equal(t, 1, env.invalidated)

	out, err = run(t, env, "list")
	require.NoError(t, err)
	assert.Contains(t, out, `"document_id": "rail-maintenance"`)

	out, err = run(t, env, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"documents": 1`)
	assert.Equal(t, []string{"regulations", "regulations", "regulations"}, env.opened)
}

func TestIngestRejectsUnknownCategory(t *testing.T) {
	env := newTestEnv()
	path := writeFile(t, "doc.txt", "레일")

	_, err := run(t, env, "ingest", "--category", "bridge", path)
	require.Error(t, err)
	assert.Empty(t, env.opened)
}

func TestIngestIDRequiresSingleFile(t *testing.T) {
	env := newTestEnv()
	a := writeFile(t, "a.txt", "레일")
	b := writeFile(t, "b.txt", "애자")

	_, err := run(t, env, "ingest", "--id", "x", a, b)
	require.Error(t, err)
}

func TestDeleteAndClear(t *testing.T) {
	env := newTestEnv()
	path := writeFile(t, "nest.txt", "둥지 제거 절차")
	_, err := run(t, env, "ingest", "--id", "nest-rule", path)
	require.NoError(t, err)

	_, err = run(t, env, "clear")
	require.Error(t, err, "clear without --yes must be refused")

	out, err := run(t, env, "delete", "nest-rule")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted nest-rule")

	_, err = run(t, env, "--namespace", "reports", "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "reports", env.opened[len(env.opened)-1])
	assert.Equal(t, 3, env.invalidated)
}

func TestDocumentFromFileDefaultsID(t *testing.T) {
	path := writeFile(t, "insulator-guide.md", "애자 점검")
	doc, err := documentFromFile(path, "", entity.CategoryInsulator)
	require.NoError(t, err)
	assert.Equal(t, "insulator-guide", doc.ID)
	assert.Equal(t, entity.CategoryInsulator, doc.Category)
	assert.Equal(t, "insulator-guide.md", doc.Metadata["source_file"])
}
