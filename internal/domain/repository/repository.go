// Package repository 定义报告与任务的持久化接口
package repository

import "context"

// TxKey 事务句柄在 context 中的键
type TxKey struct{}

// Transactor 在同一事务内执行 fn；fn 内的仓储调用从 ctx 取事务句柄
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 页码从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 越界的页码和页大小被夹到合法范围
func NewPagination(page, pageSize int) Pagination {
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Pagination{Page: max(page, 1), PageSize: pageSize}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PagedResult 一页结果及总数
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPagedResult[T any](items []T, total int64, p Pagination) *PagedResult[T] {
	r := &PagedResult[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
	if items == nil {
		r.Items = []T{}
	}
	if p.PageSize > 0 {
		r.TotalPages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return r
}
