package testutil

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/alexanderramin/dax/internal/db"
)

// FailOnNthExecEngine is a test engine that injects an error on the Nth
// ExecContext call within a transaction. This enables rollback tests by
// simulating failures at precise points in multi-write operations.
//
// ExecContext calls are counted starting at 1, across all transactions the
// engine begins. QueryContext and QueryRowContext are not counted (reads
// pass through normally).
type FailOnNthExecEngine struct {
	db.Engine
	FailOn int32
	Err    error

	count atomic.Int32
}

func (e *FailOnNthExecEngine) Begin(ctx context.Context, conn *sql.Conn, opts db.TxOptions) (db.NativeTx, error) {
	tx, err := e.Engine.Begin(ctx, conn, opts)
	if err != nil {
		return nil, err
	}
	return &failOnNthExec{NativeTx: tx, engine: e}, nil
}

type failOnNthExec struct {
	db.NativeTx
	engine *FailOnNthExecEngine
}

func (f *failOnNthExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	n := f.engine.count.Add(1)
	if n == f.engine.FailOn {
		return nil, f.engine.Err
	}
	return f.NativeTx.ExecContext(ctx, query, args...)
}
