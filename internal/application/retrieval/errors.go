package retrieval

import "errors"

// 索引层哨兵错误，handler 与链路据此区分配置缺失和调用错误
var (
	ErrVectorDisabled = errors.New("vector index is not configured")
	ErrEmptyQuery     = errors.New("query text is empty")
	ErrInvalidParams  = errors.New("top_k must be positive and threshold within [0,1]")
)
