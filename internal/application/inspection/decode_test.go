package inspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/domain/entity"
	apperrors "rail-inspection-ai-api/pkg/errors"
)

const frameJSON = `{
  "source_mp4": "videos/rail_run_01.mp4",
  "frame_index": 42,
  "timestamp_ms": 1400.5,
  "image_file": "rail_고속철도_220916_영암1_frame_000042.jpg",
  "is_anomaly": true,
  "detections": [
    {"cls_id": 3, "rail_type": "고속철도", "cls_name": "레일", "detail": "마모", "confidence": 0.95, "bbox_xyxy": [10, 20, 110, 90]},
    {"cls_id": 4, "rail_type": "고속철도", "cls_name": "침목", "detail": "균열", "confidence": 1.7, "bbox_xyxy": [0, 0, 5, 5]},
    {"rail_type": "고속철도", "cls_name": "클립", "detail": "훼손", "confidence": 0.5, "bbox_xyxy": [0, 0, 5, 5]},
    {"cls_id": 5, "cls_name": "체결구", "detail": "탈락", "confidence": 0.8, "bbox_xyxy": [0, 0, 5]},
    {"cls_id": 6, "cls_name": "레일", "detail": "훼손", "confidence": 0.61, "bbox_xyxy": [1, 1, 9, 9], "extra": true},
    "garbage",
    {"cls_id": 7, "rail_type": "일반철도", "cls_name": "레일", "detail": "훼손", "confidence": 0.7, "bbox_xyxy": [1, 1, 9, 9]}
  ]
}`

func TestDecodeFrameRejectsPerRecord(t *testing.T) {
	out, err := DecodeFrame([]byte(frameJSON), "")
	require.NoError(t, err)

	b := out.Batch
	assert.Equal(t, entity.CategoryRail, b.Category)
	assert.Equal(t, "rail_고속철도_220916_영암1_frame_000042", b.FrameID)
	assert.Equal(t, "고속철도", b.Route)
	assert.Equal(t, "영암1", b.Location)
	assert.Equal(t, int64(1400), b.TimestampMS)
	assert.True(t, b.IsAnomaly)

	require.Len(t, b.Detections, 2)
	assert.Equal(t, "레일", b.Detections[0].DefectName)
	assert.Equal(t, 7, b.Detections[1].ClassID)
	assert.Equal(t, b.FrameID, b.Detections[0].SourceFrameID)

	var idx []int
	for _, r := range out.Rejected {
		idx = append(idx, r.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, idx)
}

func TestDecodeFrameExplicitFieldsWin(t *testing.T) {
	out, err := DecodeFrame([]byte(`{"frame_index":1,"image_file":"x_a_b_c.jpg","노선":"경부선","위치":"대전","detections":[]}`), entity.CategoryInsulator)
	require.NoError(t, err)
	assert.Equal(t, entity.CategoryInsulator, out.Batch.Category)
	assert.Equal(t, "경부선", out.Batch.Route)
	assert.Equal(t, "대전", out.Batch.Location)
	assert.True(t, out.Batch.IsEmpty())
}

func TestDecodeFrameStructuralErrors(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"frame_index": "x"}`), entity.CategoryRail)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = DecodeFrame([]byte(`{"frame_index": 1, "image_file": "unknown.jpg"}`), "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = DecodeFrame([]byte(`{"frame_index": -1}`), entity.CategoryRail)
	assert.Error(t, err)
}

func TestDecodeFramesKeepsOrder(t *testing.T) {
	out, err := DecodeFrames([]byte(`[{"frame_index":2,"source_mp4":"v.mp4"},{"frame_index":1,"source_mp4":"v.mp4"}]`), entity.CategoryNest)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "v_2", out[0].Batch.FrameID)
	assert.Equal(t, "v_1", out[1].Batch.FrameID)
}

func TestDecodeFramesIsolatesBadFrame(t *testing.T) {
	frames := `[
	  {"frame_index": 1, "image_file": "rail_고속철도_220916_영암1_frame_000001.jpg", "detections": []},
	  {"frame_index": -1, "image_file": "rail_고속철도_220916_영암1_frame_000009.jpg"},
	  {"frame_index": 3, "image_file": "rail_고속철도_220916_영암1_frame_000003.jpg", "detections": []},
	  {"frame_index": 4, "image_file": "unknown_frame.jpg"},
	  {"frame_index": 5, "detections": "not an array"}
	]`
	out, err := DecodeFrames([]byte(frames), "")
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.NoError(t, out[0].Err)
	assert.NoError(t, out[2].Err)
	assert.Equal(t, "rail_고속철도_220916_영암1_frame_000003", out[2].Batch.FrameID)

	assert.True(t, apperrors.HasCode(out[1].Err, apperrors.CodeValidationFailed))
	assert.ErrorContains(t, out[1].Err, "frame_index must not be negative")
	assert.Equal(t, "rail_고속철도_220916_영암1_frame_000009", out[1].Batch.FrameID)

	assert.ErrorContains(t, out[3].Err, "unknown category")
	assert.Equal(t, "unknown_frame", out[3].Batch.FrameID)

	assert.Error(t, out[4].Err)
	assert.Equal(t, "frame_pos4", out[4].Batch.FrameID)
}

func TestDecodeFramesRejectsNonArray(t *testing.T) {
	_, err := DecodeFrames([]byte(`{"frame_index": 1}`), entity.CategoryRail)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}
