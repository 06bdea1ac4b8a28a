package inspection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"

	"rail-inspection-ai-api/internal/domain/entity"
)

// 评审给出的 patch 只允许 add/replace 以下字段
var editablePaths = []string{"/narrative", "/risk_grade", "/recommended_action", "/cited_regulation_ids"}

type jsonPatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// ApplyPatch 在文档副本上应用 JSON Patch，返回修订内容。
// 修改后等级必须合法，引用必须落在 allowedIDs 内，处置措施按等级对照表归一。
func ApplyPatch(doc *entity.InspectionDocument, patch json.RawMessage, allowedIDs []string) (*entity.InspectionDocument, error) {
	patch = bytes.TrimSpace(patch)
	if len(patch) == 0 || bytes.Equal(patch, []byte("null")) {
		return nil, fmt.Errorf("empty json patch")
	}

	var ops []jsonPatchOp
	if err := json.Unmarshal(patch, &ops); err != nil {
		return nil, fmt.Errorf("invalid json patch: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty json patch")
	}
	for i := range ops {
		op := strings.ToLower(strings.TrimSpace(ops[i].Op))
		if op != "add" && op != "replace" {
			return nil, fmt.Errorf("invalid json patch op at index %d: op=%s", i, strings.TrimSpace(ops[i].Op))
		}
		if !pathAllowed(strings.TrimSpace(ops[i].Path)) {
			return nil, fmt.Errorf("invalid json patch path at index %d: path=%s", i, ops[i].Path)
		}
		if len(bytes.TrimSpace(ops[i].Value)) == 0 {
			return nil, fmt.Errorf("invalid json patch op at index %d: value is required", i)
		}
	}

	base, err := json.Marshal(toEditable(doc))
	if err != nil {
		return nil, err
	}
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("invalid json patch: %w", err)
	}
	out, err := p.Apply(base)
	if err != nil {
		return nil, fmt.Errorf("failed to apply json patch: %w", err)
	}

	var edited editableDraft
	if err := json.Unmarshal(out, &edited); err != nil {
		return nil, fmt.Errorf("patched draft is not valid: %w", err)
	}
	grade, err := entity.ParseRiskGrade(edited.RiskGrade)
	if err != nil {
		return nil, err
	}
	narrative := strings.TrimSpace(edited.Narrative)
	if narrative == "" {
		return nil, fmt.Errorf("patched narrative is empty")
	}
	citations := intersectIDs(edited.CitedRegulationIDs, allowedIDs)
	if len(citations) == 0 {
		return nil, fmt.Errorf("patched draft has no retrieved regulation citation")
	}

	rev := doc.Clone()
	applyDraft(rev, &draftResult{Narrative: narrative, Grade: grade, Citations: citations})
	return rev, nil
}

func pathAllowed(path string) bool {
	for _, p := range editablePaths {
		if path == p {
			return true
		}
	}
	// 引用列表允许按下标追加或替换
	return strings.HasPrefix(path, "/cited_regulation_ids/")
}
