package node

import (
	"fmt"
	"strings"

	"rail-inspection-ai-api/internal/domain/entity"
)

// BuildDetectionsBlock 渲染检测结果，保持批次内原有顺序
func BuildDetectionsBlock(b *entity.DetectionBatch) string {
	if b.IsEmpty() {
		return "탐지된 결함 없음"
	}
	anomaly := "아니오"
	if b.IsAnomaly {
		anomaly = "예"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "- 이미지 파일: %s\n", orUnknown(b.ImageFile))
	fmt.Fprintf(&sb, "- 프레임: %s (index %d, %dms)\n", orUnknown(b.FrameID), b.FrameIndex, b.TimestampMS)
	fmt.Fprintf(&sb, "- 이상 탐지 여부: %s\n", anomaly)
	fmt.Fprintf(&sb, "- 탐지된 결함 수: %d개\n\n### 탐지 상세:", len(b.Detections))
	for i, d := range b.Detections {
		fmt.Fprintf(&sb, "\n%d. 부품: %s\n   - 철도유형: %s\n   - 결함상태: %s\n   - 신뢰도: %.1f%%",
			i+1, orUnknown(d.DefectName), orUnknown(d.RailType), orUnknown(d.DefectDetail), d.Confidence*100)
	}
	return sb.String()
}

// BuildEnvironmentBlock 渲染线路与位置信息
func BuildEnvironmentBlock(b *entity.DetectionBatch) string {
	lines := make([]string, 0, 3)
	if v := strings.TrimSpace(b.Route); v != "" {
		lines = append(lines, "- 노선: "+v)
	}
	if v := strings.TrimSpace(b.Location); v != "" {
		lines = append(lines, "- 위치: "+v)
	}
	if v := strings.TrimSpace(b.SourceVideo); v != "" {
		lines = append(lines, "- 원본 영상: "+v)
	}
	if len(lines) == 0 {
		return "정보 없음"
	}
	return strings.Join(lines, "\n")
}

// BuildActionTableBlock 等级与处置对照表
func BuildActionTableBlock() string {
	lines := make([]string, 0, len(entity.AllGrades))
	for _, g := range entity.AllGrades {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", g, g.Action(), g.ActionKo()))
	}
	return strings.Join(lines, "\n")
}

// OrNone 空内容替换为占位
func OrNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(없음)"
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
