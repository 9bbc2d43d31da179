package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alexanderramin/dax/internal/db"
)

// Queryable is the operation set shared by Connection and Transaction.
// Code written against it runs unchanged on the ambient connection and
// inside a transaction. The typed operations (Query, QueryUnbuffered,
// QuerySingle, ExecuteScalar) are package functions taking a Queryable.
//
// The interface is sealed: only this package's types implement it.
type Queryable interface {
	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, query string, params any) error

	// ExecuteReader runs a query and returns the raw cursor. The caller
	// must close it.
	ExecuteReader(ctx context.Context, query string, params any) (*Reader, error)

	prepare(ctx context.Context, op string) (*executor, error)
}

// Querier is a Queryable bound to a logical database.
type Querier[K Kind] interface {
	Queryable
	Kind() K
}

// executor runs statements against one DBTX: the connection's pinned handle
// or a native transaction. It binds parameters, scopes every statement to
// the lifetime of its owner (a connection or a transaction) and logs the
// outcome.
type executor struct {
	engine   db.Engine
	dbtx     db.DBTX
	logger   *slog.Logger
	kind     string
	lifetime context.Context
}

// scope derives the statement context. It ends when the caller's context
// ends or when the owner's lifetime ends, whichever comes first, so an
// abandoned cursor never keeps the connection from closing or outlives its
// transaction.
func (x *executor) scope(ctx context.Context) (context.Context, func()) {
	sctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(x.lifetime, func() { cancel(context.Cause(x.lifetime)) })
	return sctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

func (x *executor) query(ctx context.Context, op, query string, params any) (*sqlx.Rows, func(), error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, nil, x.fail(ctx, op, query, start, err)
	}
	q, args, err := x.engine.Bind(query, params)
	if err != nil {
		return nil, nil, x.fail(ctx, op, query, start, err)
	}

	sctx, release := x.scope(ctx)
	rows, err := x.dbtx.QueryContext(sctx, q, args...)
	if err != nil {
		release()
		return nil, nil, x.fail(ctx, op, query, start, err)
	}
	x.logStatement(ctx, op, query, start)
	return &sqlx.Rows{Rows: rows, Mapper: db.Mapper}, release, nil
}

func (x *executor) exec(ctx context.Context, op, query string, params any) (sql.Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, x.fail(ctx, op, query, start, err)
	}
	q, args, err := x.engine.Bind(query, params)
	if err != nil {
		return nil, x.fail(ctx, op, query, start, err)
	}

	sctx, release := x.scope(ctx)
	defer release()
	res, err := x.dbtx.ExecContext(sctx, q, args...)
	if err != nil {
		return nil, x.fail(ctx, op, query, start, err)
	}
	x.logStatement(ctx, op, query, start)
	return res, nil
}

// fail classifies err and logs it. An ended owner is reported by how it
// ended, even when the driver saw it as a cancellation: a closed connection
// as invalid state and a finished transaction as transaction state.
func (x *executor) fail(ctx context.Context, op, query string, start time.Time, err error) error {
	var out error
	if ctx.Err() == nil && x.lifetime.Err() != nil {
		out = x.ended(op, query)
	} else {
		out = classify(ctx, x.engine, op, query, err)
	}
	x.logger.LogAttrs(ctx, slog.LevelError, "statement failed",
		append(x.attrs(op, query, start), slog.Any("error", out))...)
	return out
}

func (x *executor) ended(op, query string) error {
	cause := context.Cause(x.lifetime)
	for _, done := range []error{errTxCommitted, errTxRolledBack, errTxReleased} {
		if errors.Is(cause, done) {
			return newError(ErrTransactionState, op, query, cause)
		}
	}
	return newError(ErrInvalidState, op, query, errHandleGone)
}

// mappingError reports a row that could not become the target type. A scan
// that failed because the statement was interrupted is a statement failure,
// not a mapping one.
func (x *executor) mappingError(ctx context.Context, op, query string, err error) error {
	if ctx.Err() != nil || x.lifetime.Err() != nil {
		return x.fail(ctx, op, query, time.Now(), err)
	}
	out := newError(ErrMapping, op, query, err)
	x.logger.LogAttrs(ctx, slog.LevelError, "row mapping failed",
		slog.String("op", op), slog.String("kind", x.kind), slog.Any("error", err))
	return out
}

func (x *executor) logStatement(ctx context.Context, op, query string, start time.Time) {
	x.logger.LogAttrs(ctx, slog.LevelDebug, "statement", x.attrs(op, query, start)...)
}

func (x *executor) attrs(op, query string, start time.Time) []slog.Attr {
	return []slog.Attr{
		slog.String("op", op),
		slog.String("kind", x.kind),
		slog.String("query", query),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
}
