package entity

// Tier 检索来源层级
type Tier string

const (
	TierRegulation Tier = "regulation"
	TierReport     Tier = "report"
	TierWeb        Tier = "web"
	TierModel      Tier = "model"
)

// Namespace 向量索引命名空间
type Namespace string

const (
	NamespaceRegulations Namespace = "regulations"
	NamespaceReports     Namespace = "reports"
)

// RetrievalResult 检索结果，Score 已截断到 [0,1]
type RetrievalResult struct {
	SourceID string            `json:"source_id"`
	ChunkID  string            `json:"chunk_id,omitempty"`
	Text     string            `json:"text"`
	Score    float64           `json:"similarity_score"`
	Tier     Tier              `json:"origin_tier"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SourceIDs 按出现顺序去重的来源 ID
func SourceIDs(results []RetrievalResult) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.SourceID == "" {
			continue
		}
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		out = append(out, r.SourceID)
	}
	return out
}
