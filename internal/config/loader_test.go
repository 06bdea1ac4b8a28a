package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFromAppliesDefaultsEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
app:
  name: ${RAIL_TEST_APP_NAME:fallback-name}
retrieval:
  chunk_size: 400
  regulations:
    top_k: 7
`)
	writeConfig(t, dir, "config.staging.yaml", `
inspection:
  workers: 8
`)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("RETRIEVAL_CHUNK_OVERLAP", "50")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "fallback-name", cfg.App.Name)
	assert.Equal(t, 400, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 50, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 7, cfg.Retrieval.Regulations.TopK)
	assert.InDelta(t, 0.1, cfg.Retrieval.Regulations.Threshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Retrieval.Reports.Threshold, 1e-9)
	assert.Equal(t, 8, cfg.Inspection.Workers)
	assert.Equal(t, 3, cfg.Inspection.MaxRevisions)
	assert.Equal(t, 2, cfg.Inspection.Retry.MaxAttempts)
}

func TestLoadFromRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
retrieval:
  chunk_size: 100
  chunk_overlap: 100
`)
	t.Setenv("APP_ENV", "test")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RAIL_TEST_HOST", "milvus.internal")

	out := expandEnv("host: ${RAIL_TEST_HOST:localhost} key: ${RAIL_TEST_UNSET:} keep: ${RAIL_TEST_UNSET_NODEF}")
	assert.Equal(t, "host: milvus.internal key:  keep: ${RAIL_TEST_UNSET_NODEF}", out)
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, "redis:6379", RedisConfig{Host: "redis", Port: 6379}.Addr())
	assert.Equal(t, "[::1]:19530", MilvusConfig{Host: "::1", Port: 19530}.Addr())
	assert.Equal(t, "host=db port=5432 user=rail password=pw dbname=inspection sslmode=disable",
		PostgresConfig{Host: "db", Port: 5432, User: "rail", Password: "pw", Database: "inspection"}.DSN())
}
