// Package entity 定义领域实体
package entity

import (
	"fmt"
	"math"
	"strings"
)

// Category 检测类别
type Category string

const (
	CategoryRail      Category = "rail"
	CategoryInsulator Category = "insulator"
	CategoryNest      Category = "nest"
)

// ParseCategory 解析检测类别（大小写不敏感）
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryRail:
		return CategoryRail, true
	case CategoryInsulator:
		return CategoryInsulator, true
	case CategoryNest:
		return CategoryNest, true
	}
	return "", false
}

// BoundingBox 像素坐标 x1, y1, x2, y2
type BoundingBox [4]float64

// Valid 坐标有限且 x2>=x1, y2>=y1
func (b BoundingBox) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return b[2] >= b[0] && b[3] >= b[1]
}

// Detection 视觉模型的单条检测结果，创建后不可变
type Detection struct {
	ClassID       int         `json:"class_id"`
	Category      Category    `json:"category"`
	RailType      string      `json:"rail_type,omitempty"`
	DefectName    string      `json:"defect_name"`
	DefectDetail  string      `json:"defect_detail"`
	Confidence    float64     `json:"confidence"`
	BoundingBox   BoundingBox `json:"bounding_box"`
	SourceFrameID string      `json:"source_frame_id"`
	TimestampMS   int64       `json:"timestamp_ms"`
}

// Validate 校验单条检测记录
func (d Detection) Validate() error {
	if d.ClassID < 0 {
		return fmt.Errorf("class_id must not be negative, got %d", d.ClassID)
	}
	if _, ok := ParseCategory(string(d.Category)); !ok {
		return fmt.Errorf("unknown category %q", d.Category)
	}
	if strings.TrimSpace(d.DefectName) == "" {
		return fmt.Errorf("defect_name is required")
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %v", d.Confidence)
	}
	if !d.BoundingBox.Valid() {
		return fmt.Errorf("invalid bounding_box %v", d.BoundingBox)
	}
	return nil
}

// DefectKey 缺陷类型键：部件名 + 状态
func (d Detection) DefectKey() string {
	name := strings.TrimSpace(d.DefectName)
	detail := strings.TrimSpace(d.DefectDetail)
	if detail == "" {
		return name
	}
	return name + " " + detail
}

// DetectionBatch 同一帧图像上的有序检测集合
type DetectionBatch struct {
	FrameID     string      `json:"frame_id"`
	Category    Category    `json:"category"`
	SourceVideo string      `json:"source_video,omitempty"`
	ImageFile   string      `json:"image_file,omitempty"`
	FrameIndex  int         `json:"frame_index"`
	TimestampMS int64       `json:"timestamp_ms"`
	IsAnomaly   bool        `json:"is_anomaly"`
	Route       string      `json:"route,omitempty"`
	Location    string      `json:"location,omitempty"`
	Detections  []Detection `json:"detections"`
}

// IsEmpty 批次无任何检测
func (b *DetectionBatch) IsEmpty() bool {
	return b == nil || len(b.Detections) == 0
}

// DefectGroup 同一缺陷类型的检测
type DefectGroup struct {
	Key      string
	RailType string
	Items    []Detection
}

// Query 规程检索文本
func (g DefectGroup) Query() string {
	if rt := strings.TrimSpace(g.RailType); rt != "" {
		return g.Key + " " + rt
	}
	return g.Key
}

// DefectGroups 按首次出现顺序返回去重后的缺陷类型
func (b *DetectionBatch) DefectGroups() []DefectGroup {
	if b.IsEmpty() {
		return nil
	}
	idx := make(map[string]int, len(b.Detections))
	out := make([]DefectGroup, 0, len(b.Detections))
	for _, d := range b.Detections {
		key := d.DefectKey()
		if i, ok := idx[key]; ok {
			out[i].Items = append(out[i].Items, d)
			continue
		}
		idx[key] = len(out)
		out = append(out, DefectGroup{Key: key, RailType: d.RailType, Items: []Detection{d}})
	}
	return out
}

// RailTypes 去重的线路类型，保持出现顺序
func (b *DetectionBatch) RailTypes() []string {
	return b.distinct(func(d Detection) string { return d.RailType })
}

// PartNames 去重的部件名，保持出现顺序
func (b *DetectionBatch) PartNames() []string {
	return b.distinct(func(d Detection) string { return d.DefectName })
}

func (b *DetectionBatch) distinct(field func(Detection) string) []string {
	if b.IsEmpty() {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, len(b.Detections))
	for _, d := range b.Detections {
		v := strings.TrimSpace(field(d))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
