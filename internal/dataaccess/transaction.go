package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alexanderramin/dax/internal/db"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
	txReleased
)

// Transaction is an explicit transaction on a Connection's physical
// connection. It supports the same operations as Connection, plus Commit,
// Rollback and Close.
//
// Close must be called on every path, whether or not the transaction was
// committed; it rolls back a transaction that is still active:
//
//	tx, err := conn.BeginTx(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Close()
//
// Operations fail with ErrInvalidState once the owning connection is closed
// and with ErrTransactionState once the transaction has ended.
type Transaction[K Kind] struct {
	id        uuid.UUID
	conn      *Connection[K]
	handle    *sql.Conn
	native    db.NativeTx
	isolation IsolationLevel
	deferred  *bool
	readOnly  bool
	logger    *slog.Logger

	// lifetime ends with the transaction, taking its open cursors with it.
	// The cause records how it ended.
	lifetime context.Context
	end      context.CancelCauseFunc

	mu    sync.Mutex
	state txState
}

var _ Querier[ReadWrite] = (*Transaction[ReadWrite])(nil)

// ID identifies the transaction in logs.
func (t *Transaction[K]) ID() uuid.UUID { return t.id }

// Kind returns the kind of the owning connection.
func (t *Transaction[K]) Kind() K { return t.conn.kind }

// Isolation returns the isolation level the transaction was begun with.
func (t *Transaction[K]) Isolation() IsolationLevel { return t.isolation }

// Deferred returns the deferred flag the transaction was begun with, and
// whether one was given at all.
func (t *Transaction[K]) Deferred() (deferred, ok bool) {
	if t.deferred == nil {
		return false, false
	}
	return *t.deferred, true
}

// ReadOnly reports whether the transaction was begun read-only.
func (t *Transaction[K]) ReadOnly() bool { return t.readOnly }

// Execute runs a statement that returns no rows inside the transaction.
func (t *Transaction[K]) Execute(ctx context.Context, query string, params any) error {
	return execute(ctx, t, query, params)
}

// ExecuteReader runs a query inside the transaction and returns the raw
// cursor. The caller must close it.
func (t *Transaction[K]) ExecuteReader(ctx context.Context, query string, params any) (*Reader, error) {
	return executeReader(ctx, t, query, params)
}

// Commit makes the transaction's writes durable.
func (t *Transaction[K]) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", txCommitted, t.native.Commit)
}

// Rollback discards the transaction's writes.
func (t *Transaction[K]) Rollback(ctx context.Context) error {
	return t.finish(ctx, "rollback", txRolledBack, t.native.Rollback)
}

func (t *Transaction[K]) finish(ctx context.Context, op string, to txState, native func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(op); err != nil {
		return err
	}

	if err := native(ctx); err != nil {
		out := classify(ctx, t.conn.engine, op, "", err)
		if errors.Is(err, sql.ErrTxDone) {
			// The engine ended the transaction on its own.
			t.state = txRolledBack
			t.end(errTxRolledBack)
			t.conn.detach(t)
		}
		t.logger.ErrorContext(ctx, op+" failed", "error", out)
		return out
	}

	t.state = to
	t.end(to.cause())
	t.conn.detach(t)
	t.logger.InfoContext(ctx, "transaction "+to.String())
	return nil
}

// Close releases the transaction, rolling it back if it is still active.
// It is idempotent and safe to call after Commit or Rollback.
func (t *Transaction[K]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == txReleased {
		return nil
	}

	var out error
	if t.state == txActive && t.conn.holds(t.handle) {
		ctx := context.Background()
		if err := t.native.Rollback(ctx); err != nil && !errors.Is(err, sql.ErrTxDone) {
			out = classify(ctx, t.conn.engine, "release", "", err)
			t.logger.Error("release failed", "error", out)
		} else {
			t.logger.Info("transaction rolled back on release")
		}
	}
	t.state = txReleased
	t.end(errTxReleased)
	t.conn.detach(t)
	return out
}

// abandon rolls back an active transaction whose connection is closing.
// The connection has already forgotten it.
func (t *Transaction[K]) abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txActive {
		return
	}
	if err := t.native.Rollback(context.Background()); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.Error("rollback on connection close failed", "error", err)
	}
	t.state = txRolledBack
	t.end(errClosed)
	t.logger.Info("transaction rolled back on connection close")
}

func (t *Transaction[K]) prepare(ctx context.Context, op string) (*executor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(op); err != nil {
		return nil, err
	}
	return &executor{
		engine:   t.conn.engine,
		dbtx:     t.native,
		logger:   t.logger,
		kind:     t.conn.kind.Name(),
		lifetime: t.lifetime,
	}, nil
}

// check verifies the connection handle first: a transaction whose
// connection is gone is in invalid state regardless of its own state.
func (t *Transaction[K]) check(op string) error {
	if !t.conn.holds(t.handle) {
		return newError(ErrInvalidState, op, "", errHandleGone)
	}
	switch t.state {
	case txCommitted:
		return newError(ErrTransactionState, op, "", errTxCommitted)
	case txRolledBack:
		return newError(ErrTransactionState, op, "", errTxRolledBack)
	case txReleased:
		return newError(ErrTransactionState, op, "", errTxReleased)
	}
	return nil
}

// cause is the lifetime cause of a transaction that ended in state s.
func (s txState) cause() error {
	switch s {
	case txCommitted:
		return errTxCommitted
	case txRolledBack:
		return errTxRolledBack
	default:
		return errTxReleased
	}
}

func (s txState) String() string {
	switch s {
	case txActive:
		return "active"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	case txReleased:
		return "released"
	default:
		return "unknown"
	}
}
