package entity

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFreezesAfterApproval(t *testing.T) {
	doc := NewInspectionDocument(DetectionBatch{FrameID: "f-1", Category: CategoryRail})
	doc.RiskGrade = GradeO
	doc.RecommendedAction = GradeO.Action()

	rev := doc.Clone()
	rev.RiskGrade = GradeX1
	rev.RecommendedAction = GradeX1.Action()
	rev.CitedRegulationIDs = []string{"RAIL-MNT-002", "RAIL-MNT-001", "RAIL-MNT-002"}
	require.NoError(t, doc.ApplyRevision(rev, "grade too low"))
	assert.Equal(t, 1, doc.RevisionCount)
	assert.Equal(t, []string{"RAIL-MNT-001", "RAIL-MNT-002"}, doc.CitedRegulationIDs)
	assert.True(t, doc.ActionConsistent())

	require.NoError(t, doc.Approve())
	assert.True(t, doc.IsFrozen())
	assert.NotNil(t, doc.FinalizedAt)
	assert.ErrorIs(t, doc.ApplyRevision(rev, ""), ErrDocumentFrozen)
	assert.ErrorIs(t, doc.MarkUnresolved("late"), ErrDocumentFrozen)
	assert.Equal(t, ReviewStatusApproved, doc.ReviewStatus)
}

func TestNewSerialFormat(t *testing.T) {
	s := NewSerial(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^RPT-20240309-[0-9A-F]{6}$`), s)
}

func TestDefectGroupsKeepFirstSeenOrder(t *testing.T) {
	b := DetectionBatch{Detections: []Detection{
		{DefectName: "레일", DefectDetail: "마모", RailType: "고속철도"},
		{DefectName: "체결장치", DefectDetail: "탈락"},
		{DefectName: "레일", DefectDetail: "마모"},
	}}
	groups := b.DefectGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, "레일 마모", groups[0].Key)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, "레일 마모 고속철도", groups[0].Query())
	assert.Equal(t, []string{"레일", "체결장치"}, b.PartNames())
}

func TestDetectionValidate(t *testing.T) {
	ok := Detection{Category: CategoryRail, DefectName: "레일", Confidence: 0.95, BoundingBox: BoundingBox{1, 2, 3, 4}}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Confidence = 1.5
	assert.Error(t, bad.Validate())

	bad = ok
	bad.BoundingBox = BoundingBox{5, 5, 1, 1}
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Category = "bridge"
	assert.Error(t, bad.Validate())
}

func TestUngroundedMarkerText(t *testing.T) {
	assert.Equal(t, "ungrounded — regulation not found", UngroundedMarker)
}
