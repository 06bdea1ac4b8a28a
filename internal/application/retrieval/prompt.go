package retrieval

import (
	"fmt"
	"strings"

	"rail-inspection-ai-api/internal/domain/entity"
)

// BuildPromptContext 将召回结果格式化为可直接注入 Prompt 的块。
// 约束：尽量短，不把 score 等调试信息塞进 Prompt。
func BuildPromptContext(results []entity.RetrievalResult, maxResults int, maxRunesPerResult int) string {
	if len(results) == 0 {
		return ""
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxRunesPerResult <= 0 {
		maxRunesPerResult = 1000
	}

	n := len(results)
	if n > maxResults {
		n = maxResults
	}

	blocks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r := results[i]
		txt := truncateRunes(strings.TrimSpace(r.Text), maxRunesPerResult)
		if txt == "" {
			continue
		}
		var label string
		switch r.Tier {
		case entity.TierRegulation:
			label = "규정 " + r.SourceID
		case entity.TierReport:
			label = "보고서 " + r.SourceID
		case entity.TierWeb:
			label = "웹 " + r.SourceID
		default:
			label = r.SourceID
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, txt))
	}
	return strings.Join(blocks, "\n\n")
}

// CompactOneLine 折叠换行与连续空白
func CompactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
