package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEngine is returned by Lookup for an unregistered engine name.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrUnsupportedIsolation indicates the engine cannot honor the requested
	// isolation level.
	ErrUnsupportedIsolation = errors.New("unsupported isolation level")

	// ErrUnsupportedParams indicates a parameter object the binder cannot use.
	ErrUnsupportedParams = errors.New("unsupported parameter object")
)

// TxOptions carries the knobs of Engine.Begin.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool

	// Deferred controls lock acquisition timing on engines that have the
	// notion (SQLite). Nil leaves the choice to the engine.
	Deferred *bool
}

// Engine is the capability set the data-access core needs from a database
// engine: opening a pool, preparing a pinned connection, beginning native
// transactions, binding parameters to placeholders and extracting the
// engine's diagnostic code from an error.
type Engine interface {
	// Name identifies the engine in logs and configuration.
	Name() string

	// DriverName is the database/sql driver the engine registers under.
	DriverName() string

	// Open opens a pool for dsn and verifies connectivity.
	Open(ctx context.Context, dsn string) (*sql.DB, error)

	// Connect runs per-connection setup on a freshly pinned connection.
	Connect(ctx context.Context, conn *sql.Conn, readOnly bool) error

	// Begin starts a native transaction on conn.
	Begin(ctx context.Context, conn *sql.Conn, opts TxOptions) (NativeTx, error)

	// Bind turns a parameter object into driver arguments, rewriting the
	// query when the driver has no native named placeholders.
	Bind(query string, params any) (string, []any, error)

	// Diagnose returns the engine error code carried by err, if any.
	Diagnose(err error) (code string, ok bool)
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "postgres", "postgresql", "pq":
		return Postgres{}, nil
	case "pgx":
		return Postgres{Driver: DriverPgx}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}
