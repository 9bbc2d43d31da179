package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/alexanderramin/dax/internal/db"
)

var (
	// ErrInvalidState indicates an operation on a closed connection or on a
	// transaction whose connection handle is no longer available.
	ErrInvalidState = errors.New("invalid state")

	// ErrExecution indicates the engine rejected or failed a statement.
	ErrExecution = errors.New("execution failed")

	// ErrCardinality indicates QuerySingle saw zero or more than one row.
	ErrCardinality = errors.New("unexpected row count")

	// ErrCancelled indicates the caller's context ended before or during
	// the operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTransactionState indicates an operation on a transaction that was
	// already committed, rolled back or released.
	ErrTransactionState = errors.New("invalid transaction state")

	// ErrMapping indicates a row could not be converted to the target type.
	ErrMapping = errors.New("row mapping failed")

	// ErrStreamConsumed indicates a second pass over a one-shot Stream.
	ErrStreamConsumed = errors.New("stream already consumed")
)

var (
	errClosed       = errors.New("connection is closed")
	errHandleGone   = errors.New("connection handle is no longer available")
	errTxActive     = errors.New("connection has an active transaction")
	errTxCommitted  = errors.New("transaction already committed")
	errTxRolledBack = errors.New("transaction already rolled back")
	errTxReleased   = errors.New("transaction already released")
	errManyRows     = errors.New("more than one row in result set")
)

// Error is the error type returned by every operation in this package.
// errors.Is matches both Kind and the wrapped cause.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error
	// Op is the operation that failed, e.g. "query_single" or "commit".
	Op string
	// Query is the statement text, if any.
	Query string
	// Code is the engine's diagnostic code, e.g. "SQLITE_CONSTRAINT" or a
	// SQLSTATE, when the engine reported one.
	Code string
	Err  error
}

func newError(kind error, op, query string, err error) *Error {
	return &Error{Kind: kind, Op: op, Query: query, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a failure from the engine layer onto the error taxonomy.
// A done caller context wins over whatever the driver reported, since
// drivers surface interrupted statements in their own ways.
func classify(ctx context.Context, engine db.Engine, op, query string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}

	switch {
	case ctx.Err() != nil:
		cause := err
		if !errors.Is(err, ctx.Err()) {
			cause = errors.Join(err, ctx.Err())
		}
		return newError(ErrCancelled, op, query, cause)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrCancelled, op, query, err)
	case errors.Is(err, sql.ErrTxDone):
		return newError(ErrTransactionState, op, query, err)
	case errors.Is(err, sql.ErrConnDone):
		return newError(ErrInvalidState, op, query, err)
	}

	e := newError(ErrExecution, op, query, err)
	if engine != nil {
		if code, ok := engine.Diagnose(err); ok {
			e.Code = code
		}
	}
	return e
}
