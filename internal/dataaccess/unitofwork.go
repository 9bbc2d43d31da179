package dataaccess

import (
	"context"
	"errors"
	"fmt"
)

// UnitOfWork manages transactional boundaries. The callback receives a
// Transaction to run its statements on; it must not commit or roll back
// itself.
type UnitOfWork[K Kind] interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Transaction[K]) error, opts ...TxOption) error
}

// WithinTx begins a transaction, runs fn and commits if fn returns nil.
// If fn fails or panics, the transaction is rolled back; panics are
// re-raised after the rollback.
func (c *Connection[K]) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Transaction[K]) error, opts ...TxOption) error {
	tx, err := c.BeginTx(ctx, opts...)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Close()

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		rbErr := tx.Rollback(context.WithoutCancel(ctx))
		if rbErr != nil && !errors.Is(rbErr, ErrTransactionState) && !errors.Is(rbErr, ErrInvalidState) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
