package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/config"
	domain "rail-inspection-ai-api/internal/domain/entity"
)

func TestChunksSchema(t *testing.T) {
	s := ChunksSchema("rail_regulations_chunks", 768)
	require.Len(t, s.Fields, 8)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, fieldID, s.Fields[0].Name)
	assert.Equal(t, "768", s.Fields[1].TypeParams["dim"])
	assert.Equal(t, entity.FieldTypeInt64, s.Fields[7].DataType)
}

func TestCollectionNames(t *testing.T) {
	c := &Client{config: config.MilvusConfig{CollectionPrefix: "rail", SearchEf: 64}}
	assert.Equal(t, "rail_regulations_chunks", c.collection(domain.NamespaceRegulations))
	assert.Equal(t, "reports_chunks", (&Client{}).collection(domain.NamespaceReports))
	assert.Equal(t, 64, c.searchEf(5))
	assert.Equal(t, 100, c.searchEf(100))
}

func TestChunkAt(t *testing.T) {
	rs := client.ResultSet{
		entity.NewColumnVarChar(fieldID, []string{"c1", "c2"}),
		entity.NewColumnVarChar(fieldDocumentID, []string{"doc-1", "doc-1"}),
		entity.NewColumnVarChar(fieldSourceID, []string{"SCENARIO_rail_1", "SCENARIO_rail_2"}),
		entity.NewColumnVarChar(fieldCategory, []string{"rail", "rail"}),
		entity.NewColumnVarChar(fieldText, []string{"레일 마모", "레일 균열"}),
		entity.NewColumnVarChar(fieldMetadata, []string{`{"risk_grade":"X2"}`, ``}),
		entity.NewColumnInt64(fieldSeq, []int64{3, 4}),
	}
	c := chunkAt(rs, 0)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, domain.Category("rail"), c.Category)
	assert.Equal(t, "X2", c.Metadata["risk_grade"])
	assert.Equal(t, int64(3), c.Seq)
	assert.Nil(t, chunkAt(rs, 1).Metadata)
}

func TestStore_NotConfigured(t *testing.T) {
	var s *Store
	assert.Error(t, s.Ensure(t.Context(), domain.NamespaceRegulations))
	_, err := s.Search(t.Context(), domain.NamespaceRegulations, nil)
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"doc \"1\""`, quote(`doc "1"`))
}
