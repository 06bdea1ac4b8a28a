package retrieval

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// [규정 ID]: RAIL-MNT-001
	sectionPattern = regexp.MustCompile(`\[규정 ID\]:\s*([\w-]+)`)
	// [필드명]: 값，值延续到下一个字段、空行或结尾
	fieldPattern = regexp.MustCompile(`(?s)\[([^\]\n]+)\]:\s*(.+?)(?:\n\[|\n\n|$)`)
)

func splitByRunes(s string, maxRunes int, overlapRunes int) []string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{raw}
	}
	if overlapRunes < 0 {
		overlapRunes = 0
	}
	runes := []rune(raw)
	if len(runes) <= maxRunes {
		return []string{raw}
	}
	step := maxRunes - overlapRunes
	if step <= 0 {
		step = maxRunes
	}

	out := make([]string, 0, (len(runes)/step)+1)
	for start := 0; start < len(runes); start += step {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}
	}
	return out
}

// section 规程文本中以 [규정 ID] 开头的一节
type section struct {
	SourceID string
	Text     string
}

// splitSections 按 [규정 ID] 标记拆节；无标记时整篇作为一节。
// 第一个标记之前的前言并入 defaultID 节。
func splitSections(text, defaultID string) []section {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}
	locs := sectionPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return []section{{SourceID: defaultID, Text: raw}}
	}

	out := make([]section, 0, len(locs)+1)
	if pre := strings.TrimSpace(raw[:locs[0][0]]); pre != "" {
		out = append(out, section{SourceID: defaultID, Text: pre})
	}
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(raw[loc[0]:end])
		if body == "" {
			continue
		}
		out = append(out, section{SourceID: raw[loc[2]:loc[3]], Text: body})
	}
	return out
}

// chunkID 分片 ID 由文档 ID 和序号决定，重复写入得到相同 ID
func chunkID(documentID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, n)
}

// extractFields 解析 "[字段]: 值" 行，字段名空格替换为下划线，跳过 규정_ID
func extractFields(text string) map[string]string {
	out := make(map[string]string)
	rest := text
	for {
		loc := fieldPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		key := strings.ReplaceAll(strings.TrimSpace(rest[loc[2]:loc[3]]), " ", "_")
		val := strings.TrimSpace(rest[loc[4]:loc[5]])
		if key != "" && key != "규정_ID" && val != "" {
			if _, dup := out[key]; !dup {
				out[key] = val
			}
		}
		// 终止符中的 "[" 属于下一个字段
		next := loc[5]
		if next <= 0 || next >= len(rest) {
			break
		}
		rest = rest[next:]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
