package node

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/domain/entity"
)

func TestDecodeModelJSONToleratesFences(t *testing.T) {
	var out struct {
		RiskGrade string `json:"risk_grade"`
	}
	err := DecodeModelJSON("검토 결과입니다.\n```json\n{\"risk_grade\": \"X2\"}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "X2", out.RiskGrade)

	assert.Error(t, DecodeModelJSON("JSON 없음", &out))
}

func TestDetectionsBlockKeepsOrder(t *testing.T) {
	b := &entity.DetectionBatch{FrameID: "f-7", Detections: []entity.Detection{
		{DefectName: "레일", DefectDetail: "마모", Confidence: 0.95},
		{DefectName: "체결장치", DefectDetail: "탈락", Confidence: 0.5},
	}}
	block := BuildDetectionsBlock(b)
	assert.Contains(t, block, "탐지된 결함 수: 2개")
	assert.Contains(t, block, "95.0%")
	assert.Less(t, strings.Index(block, "레일"), strings.Index(block, "체결장치"))
	assert.Equal(t, "탐지된 결함 없음", BuildDetectionsBlock(&entity.DetectionBatch{}))
}

func TestActionTableListsEveryGrade(t *testing.T) {
	table := BuildActionTableBlock()
	for _, g := range entity.AllGrades {
		assert.Contains(t, table, g.Action())
	}
}

func TestLLMErrorClassifiers(t *testing.T) {
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("Unknown parameter: response_format")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("timeout")))
	assert.True(t, IsRateLimitError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")))
	assert.Equal(t, "레일", TruncateByRunes("레일마모", 2))
}

func TestExtractJSONObjectSkipsBracesInProse(t *testing.T) {
	out := "규정 {R-12} 참고. 결과: {\"narrative\": \"균열 {심함}\", \"ids\": [\"R-12\"]} 끝"
	assert.Equal(t, `{"narrative": "균열 {심함}", "ids": ["R-12"]}`, ExtractJSONObject(out))
	assert.Equal(t, "no json", ExtractJSONObject("  no json "))
}
