package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByRunesOverlap(t *testing.T) {
	text := strings.Repeat("가", 10) + strings.Repeat("나", 10)
	chunks := splitByRunes(text, 8, 3)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 8)
	}
	// 相邻分片共享 overlap 个字符
	first, second := []rune(chunks[0]), []rune(chunks[1])
	assert.Equal(t, string(first[5:]), string(second[:3]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))

	assert.Nil(t, splitByRunes("   ", 8, 3))
	assert.Equal(t, []string{"짧은"}, splitByRunes("짧은", 8, 3))
}

func TestSplitSections(t *testing.T) {
	secs := splitSections(regulationText, "doc")
	require.Len(t, secs, 3)
	assert.Equal(t, "doc", secs[0].SourceID)
	assert.Equal(t, "RAIL-MNT-001", secs[1].SourceID)
	assert.True(t, strings.HasPrefix(secs[1].Text, "[규정 ID]: RAIL-MNT-001"))
	assert.Equal(t, "RAIL-MNT-002", secs[2].SourceID)

	plain := splitSections("규정 ID 없음", "doc")
	require.Len(t, plain, 1)
	assert.Equal(t, "doc", plain[0].SourceID)
}

func TestExtractFields(t *testing.T) {
	fields := extractFields("[규정 ID]: RAIL-MNT-001\n[점검 대상]: 레일\n[전기 안전 조치]: 단전 후 작업\n\n본문")
	assert.Equal(t, map[string]string{
		"점검_대상":    "레일",
		"전기_안전_조치": "단전 후 작업",
	}, fields)
	assert.Nil(t, extractFields("필드 없음"))
}
