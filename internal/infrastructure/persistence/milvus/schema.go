package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 分片集合字段
const (
	fieldID         = "id"
	fieldVector     = "vector"
	fieldDocumentID = "document_id"
	fieldSourceID   = "source_id"
	fieldCategory   = "category"
	fieldText       = "text"
	fieldMetadata   = "metadata"
	fieldSeq        = "seq"

	collectionSuffix = "chunks"
)

var outputFields = []string{fieldID, fieldDocumentID, fieldSourceID, fieldCategory, fieldText, fieldMetadata, fieldSeq}

// ChunksSchema 分片集合 Schema；每个命名空间一个集合
func ChunksSchema(collection string, dim int) *entity.Schema {
	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
		}
	}
	id := varchar(fieldID, 128)
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: collection,
		Description:    "Rail inspection knowledge chunks",
		Fields: []*entity.Field{
			id,
			{
				Name:       fieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar(fieldDocumentID, 128),
			varchar(fieldSourceID, 128),
			varchar(fieldCategory, 32),
			varchar(fieldText, 65535),
			varchar(fieldMetadata, 8192),
			{Name: fieldSeq, DataType: entity.FieldTypeInt64},
		},
	}
}
