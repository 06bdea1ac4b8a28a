package inspection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rail-inspection-ai-api/internal/domain/entity"
)

func TestRenderDocumentSections(t *testing.T) {
	doc := patchableDoc()
	text := RenderDocument(doc)

	sections := ParseSections(text)
	assert.Equal(t, doc.Serial, sections["일련번호"])
	assert.Equal(t, "고속철도", sections["철도분류"])
	assert.Equal(t, "레일", sections["부품명"])
	assert.Equal(t, "노선: 고속철도\n위치: 영암1", sections["노선정보"])
	assert.Equal(t, "SCENARIO_rail_1", sections["참조 규정"])
	assert.Equal(t, "10일 이내 교체 (replace within 10 days)", sections["권장 조치내용"])
	assert.Equal(t, "작업일자:\n작업내용:", sections["작업이력"])

	g, ok := entity.FindReportGrade(text)
	assert.True(t, ok)
	assert.Equal(t, entity.GradeX2, g)
}

func TestRenderUngroundedShowsMarker(t *testing.T) {
	doc := entity.NewInspectionDocument(nestBatch("n1"))
	markUngrounded(doc)
	assert.Equal(t, entity.UngroundedMarker, ParseSections(RenderDocument(doc))["참조 규정"])
}

func TestFixLineBreaks(t *testing.T) {
	cases := map[string]string{
		"신뢰도 75.\n6%":         "신뢰도 75.6%",
		"(흐림,\n26.1°C,\n58%)": "(흐림, 26.1°C, 58%)",
		"26.1°C\n는 높다":        "26.1°C는 높다",
		"온도는\n26.1°C":         "온도는 26.1°C",
		"10일\n이내 교체":          "10일 이내 교체",
		"날씨:\n흐림":             "날씨: 흐림",
		"a\n\n\n\nb":          "a\n\nb",
	}
	for in, want := range cases {
		assert.Equal(t, want, FixLineBreaks(in), in)
	}
}
