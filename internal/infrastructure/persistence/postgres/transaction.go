package postgres

import (
	"context"

	"gorm.io/gorm"

	"rail-inspection-ai-api/internal/domain/repository"
)

// TxManager 基于 GORM 的事务管理；事务句柄经 repository.TxKey 随 ctx 传给仓储
type TxManager struct {
	client *Client
}

var _ repository.Transactor = (*TxManager)(nil)

func NewTxManager(client *Client) *TxManager {
	return &TxManager{client: client}
}

// WithTransaction fn 返回错误时回滚；ctx 已携带事务时在同一事务内执行
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return m.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, repository.TxKey{}, tx))
	})
}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(repository.TxKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// conn 仓储使用的会话，优先取 ctx 中的事务
func (c *Client) conn(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return c.db.WithContext(ctx)
}
