package repository

import (
	"context"

	"github.com/hl8/hl8-go-pkg/errors"

	"gorm.io/gorm"
)

/* ========================================================================
 * Transaction Repository Implementation - 事务支持实现
 * ========================================================================
 * 职责: 实现 TransactionRepository 接口
 * ======================================================================== */

// Transaction 在事务中执行操作
// 如果 fn 返回错误，事务将回滚；否则提交
func (r *RepositoryImpl[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := r.withContext(ctx)

	if err := db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "transaction failed", err)
	}

	return nil
}

// Execute 在事务中执行操作，事务 DB 通过 context 传递给嵌套的仓储调用
// fn 内通过 txCtx 调用的仓储方法全部落在同一事务中
func (r *RepositoryImpl[T]) Execute(ctx context.Context, fn func(txCtx context.Context) error) error {
	db := r.withContext(ctx)

	if err := db.Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "transaction failed", err)
	}

	return nil
}

// WithTx 创建事务版本的仓储
// 返回的仓储实例使用传入的事务 DB
func (r *RepositoryImpl[T]) WithTx(tx *gorm.DB) Repository[T] {
	return &RepositoryImpl[T]{db: tx}
}
