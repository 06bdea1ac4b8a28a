// Package inspection 实现检测批次到点检报告的生成、评审与编排。
package inspection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"rail-inspection-ai-api/internal/domain/entity"
	apperrors "rail-inspection-ai-api/pkg/errors"
)

// RawDetection 视觉模型输出的单条检测
type RawDetection struct {
	ClsID      *int      `json:"cls_id"`
	RailType   string    `json:"rail_type"`
	ClsName    string    `json:"cls_name"`
	Detail     string    `json:"detail"`
	Confidence *float64  `json:"confidence"`
	BBoxXYXY   []float64 `json:"bbox_xyxy"`
}

// RawFrame 视觉模型输出的单帧结果
type RawFrame struct {
	SourceMP4   string            `json:"source_mp4"`
	FrameIndex  int               `json:"frame_index"`
	TimestampMS float64           `json:"timestamp_ms"`
	ImageFile   string            `json:"image_file"`
	Detections  []json.RawMessage `json:"detections"`
	IsAnomaly   bool              `json:"is_anomaly"`
	Route       string            `json:"노선,omitempty"`
	Location    string            `json:"위치,omitempty"`
}

// RecordError 被拒绝的检测记录
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// DecodedBatch 校验后的批次与被跳过的记录。Err 非空表示该帧本身无法使用，
// Batch 中只保留用于定位的帧标识，流水线直接将其记为失败批次。
type DecodedBatch struct {
	Batch    entity.DetectionBatch
	Rejected []RecordError
	Err      error
}

// DecodeFrame 解析单帧 JSON；帧级结构错误整体失败，检测记录逐条校验
func DecodeFrame(data []byte, category entity.Category) (*DecodedBatch, error) {
	var frame RawFrame
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&frame); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid detection frame json")
	}
	return BuildBatch(&frame, category)
}

// DecodeFrames 解析帧数组。只有数组本身不合法时返回错误；
// 单帧错误保留在对应位置的 DecodedBatch.Err 中，不影响其他帧。
func DecodeFrames(data []byte, category entity.Category) ([]*DecodedBatch, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid detection frames json")
	}
	out := make([]*DecodedBatch, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeFrame(raw, category)
		if err != nil {
			b = &DecodedBatch{
				Batch: entity.DetectionBatch{FrameID: fallbackFrameID(raw, i), Category: category},
				Err:   apperrors.Wrap(err, apperrors.CodeValidationFailed, fmt.Sprintf("frame %d", i)),
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// fallbackFrameID 帧无法完整解析时，尽量从文件名字段取得标识，否则使用数组下标
func fallbackFrameID(raw json.RawMessage, index int) string {
	var ident struct {
		SourceMP4 string `json:"source_mp4"`
		ImageFile string `json:"image_file"`
	}
	if json.Unmarshal(raw, &ident) == nil {
		if img := strings.TrimSpace(ident.ImageFile); img != "" {
			return strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))
		}
		if src := strings.TrimSpace(ident.SourceMP4); src != "" {
			return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + "_pos" + strconv.Itoa(index)
		}
	}
	return "frame_pos" + strconv.Itoa(index)
}

// BuildBatch 将原始帧转换为检测批次。
// category 为空时按图片文件名前缀推断（rail_/insulator_/nest_）。
func BuildBatch(frame *RawFrame, category entity.Category) (*DecodedBatch, error) {
	if frame == nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "frame is nil")
	}
	if frame.FrameIndex < 0 {
		return nil, apperrors.Newf(apperrors.CodeValidationFailed, "frame_index must not be negative, got %d", frame.FrameIndex)
	}

	name := fileNameInfo(frame.ImageFile)
	if category == "" {
		category = name.category
	}
	if _, ok := entity.ParseCategory(string(category)); !ok {
		return nil, apperrors.Newf(apperrors.CodeValidationFailed, "unknown category %q", category)
	}

	batch := entity.DetectionBatch{
		FrameID:     frameID(frame),
		Category:    category,
		SourceVideo: strings.TrimSpace(frame.SourceMP4),
		ImageFile:   strings.TrimSpace(frame.ImageFile),
		FrameIndex:  frame.FrameIndex,
		TimestampMS: int64(frame.TimestampMS),
		IsAnomaly:   frame.IsAnomaly,
		Route:       firstNonEmpty(frame.Route, name.route),
		Location:    firstNonEmpty(frame.Location, name.location),
	}

	out := &DecodedBatch{}
	for i, raw := range frame.Detections {
		d, err := decodeDetection(raw, &batch)
		if err != nil {
			out.Rejected = append(out.Rejected, RecordError{Index: i, Reason: err.Error()})
			continue
		}
		batch.Detections = append(batch.Detections, d)
	}
	out.Batch = batch
	return out, nil
}

func decodeDetection(raw json.RawMessage, batch *entity.DetectionBatch) (entity.Detection, error) {
	var rd RawDetection
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rd); err != nil {
		return entity.Detection{}, fmt.Errorf("malformed detection: %w", err)
	}
	if rd.ClsID == nil {
		return entity.Detection{}, fmt.Errorf("cls_id is required")
	}
	if rd.Confidence == nil {
		return entity.Detection{}, fmt.Errorf("confidence is required")
	}
	if len(rd.BBoxXYXY) != 4 {
		return entity.Detection{}, fmt.Errorf("bbox_xyxy must have 4 values, got %d", len(rd.BBoxXYXY))
	}

	d := entity.Detection{
		ClassID:       *rd.ClsID,
		Category:      batch.Category,
		RailType:      strings.TrimSpace(rd.RailType),
		DefectName:    strings.TrimSpace(rd.ClsName),
		DefectDetail:  strings.TrimSpace(rd.Detail),
		Confidence:    *rd.Confidence,
		BoundingBox:   entity.BoundingBox{rd.BBoxXYXY[0], rd.BBoxXYXY[1], rd.BBoxXYXY[2], rd.BBoxXYXY[3]},
		SourceFrameID: batch.FrameID,
		TimestampMS:   batch.TimestampMS,
	}
	if err := d.Validate(); err != nil {
		return entity.Detection{}, err
	}
	return d, nil
}

type imageNameInfo struct {
	category entity.Category
	route    string
	location string
}

// fileNameInfo 解析 rail_고속철도_220916_영암1_frame_000000.jpg 形式的文件名
func fileNameInfo(imageFile string) imageNameInfo {
	base := strings.TrimSuffix(filepath.Base(strings.TrimSpace(imageFile)), filepath.Ext(imageFile))
	parts := strings.Split(base, "_")
	var info imageNameInfo
	if len(parts) > 0 {
		if c, ok := entity.ParseCategory(parts[0]); ok {
			info.category = c
		}
	}
	if len(parts) >= 4 {
		info.route = parts[1]
		info.location = parts[3]
	}
	return info
}

func frameID(frame *RawFrame) string {
	if img := strings.TrimSpace(frame.ImageFile); img != "" {
		return strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))
	}
	src := strings.TrimSuffix(filepath.Base(strings.TrimSpace(frame.SourceMP4)), filepath.Ext(frame.SourceMP4))
	if src == "" || src == "." {
		src = "frame"
	}
	return src + "_" + strconv.Itoa(frame.FrameIndex)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
