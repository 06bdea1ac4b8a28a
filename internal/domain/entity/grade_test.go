package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskGradeOrderAndActions(t *testing.T) {
	for i := 1; i < len(AllGrades); i++ {
		assert.True(t, AllGrades[i-1].Less(AllGrades[i]), "%s < %s", AllGrades[i-1], AllGrades[i])
	}
	assert.Equal(t, "replace within 10 days", GradeX2.Action())
	assert.Equal(t, "replace same day", GradeS.Action())
	assert.Equal(t, GradeS, MaxGrade(GradeO, GradeS, GradeX1))
	assert.Equal(t, GradeE, MaxGrade())

	g, err := ParseRiskGrade(" x1 ")
	require.NoError(t, err)
	assert.Equal(t, GradeX1, g)
	_, err = ParseRiskGrade("X3")
	assert.Error(t, err)
}

func TestActionMatches(t *testing.T) {
	assert.True(t, GradeX2.ActionMatches("Replace within 10 days"))
	assert.True(t, GradeX2.ActionMatches("10일 이내 교체"))
	assert.False(t, GradeX2.ActionMatches("replace within 1 month"))
	assert.False(t, RiskGrade("Z").ActionMatches("replace same day"))
}

func TestFindReportGrade(t *testing.T) {
	g, ok := FindReportGrade("[위험도평가]\n위험도 등급: X2 (마모 진행)")
	require.True(t, ok)
	assert.Equal(t, GradeX2, g)

	_, ok = FindReportGrade("등급 정보 없음")
	assert.False(t, ok)
}

func TestFindGradeMentions(t *testing.T) {
	text := "위험도 등급: S 판정. 이전에는 X1 수준이었고 grade O 로 관리됨."
	ms := FindGradeMentions(text)
	require.Len(t, ms, 3)
	assert.Equal(t, GradeS, ms[0].Grade)
	assert.Equal(t, GradeX1, ms[1].Grade)
	assert.Equal(t, GradeO, ms[2].Grade)

	assert.Empty(t, FindGradeMentions("Examples of Ordinary Sentences"))
}
