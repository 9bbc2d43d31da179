package db

import (
	"context"
	"database/sql"
)

// DBTX is the statement-execution surface shared by a pinned *sql.Conn, a
// *sql.Tx and the engine-specific transaction handles in this package.
// Everything above the engine layer executes through it, so the same code
// path serves the ambient connection and an explicit transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NativeTx is a transaction handle produced by Engine.Begin.
// Commit and Rollback return sql.ErrTxDone once the transaction has ended.
type NativeTx interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Compile-time verification that the standard handles satisfy DBTX.
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Conn)(nil)
	_ DBTX = (*sql.Tx)(nil)

	_ NativeTx = sqlTx{}
	_ NativeTx = (*stmtTx)(nil)
)
