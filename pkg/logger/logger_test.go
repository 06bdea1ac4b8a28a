package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), JobIDKey, "job-1")
	ctx = WithContext(ctx, BatchIDKey, "frame_000012")

	Error(ctx, "batch failed", errors.New("llm timeout"), "attempt", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "frame_000012", line["batch_id"])
	assert.Equal(t, "llm timeout", line["error"])
	assert.EqualValues(t, 2, line["attempt"])
	assert.Equal(t, "ERROR", line["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}

func TestLogRecordsCallerSource(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")

	Info(context.Background(), "indexed", "chunks", 3)
	Debug(context.Background(), "suppressed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	src, ok := line["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, src["file"], "logger_test.go")
	assert.Nil(t, line["trace_id"])
}
