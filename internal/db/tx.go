package db

import (
	"context"
	"database/sql"
	"strings"
)

// sqlTx adapts *sql.Tx to NativeTx.
type sqlTx struct {
	*sql.Tx
}

func (t sqlTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Tx.Commit()
}

func (t sqlTx) Rollback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Tx.Rollback()
}

// beginSQL starts a database/sql transaction on conn. The transaction is
// detached from ctx once begun: database/sql would otherwise roll it back
// as soon as the caller's begin context ends.
func beginSQL(ctx context.Context, conn *sql.Conn, opts TxOptions) (NativeTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	return sqlTx{Tx: tx}, nil
}

// stmtTx is a transaction driven by explicit BEGIN/COMMIT/ROLLBACK
// statements on a pinned connection. Engines use it when the begin statement
// itself carries options database/sql cannot express.
type stmtTx struct {
	conn *sql.Conn
	done bool
}

func (t *stmtTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *stmtTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *stmtTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

func (t *stmtTx) Commit(ctx context.Context) error {
	return t.end(ctx, "COMMIT")
}

func (t *stmtTx) Rollback(ctx context.Context) error {
	return t.end(ctx, "ROLLBACK")
}

func (t *stmtTx) end(ctx context.Context, stmt string) error {
	if t.done {
		return sql.ErrTxDone
	}
	if _, err := t.conn.ExecContext(ctx, stmt); err != nil {
		// The engine may already have ended the transaction on its own
		// (interrupted statement, closed connection).
		if strings.Contains(err.Error(), "no transaction is active") {
			t.done = true
			return sql.ErrTxDone
		}
		return err
	}
	t.done = true
	return nil
}
