package repository

import (
	"context"

	"gorm.io/gorm"
)

/* ========================================================================
 * Transaction Context Helper
 * ========================================================================
 * 职责: 在 context 中传递事务会话
 * 事务与隔离上下文独立传递: 事务绑定 DB 会话，隔离上下文由
 * 查询作用域在执行时读取，两者互不干扰
 * ======================================================================== */

// txKey 事务在 context 中的键
type txKey struct{}

// withTx 将事务 DB 写入 context
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// sessionFor 返回绑定了 ctx 的 DB 会话
// context 中存在事务时优先使用事务会话
func sessionFor(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}
