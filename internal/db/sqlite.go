package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultBusyTimeout = 5 * time.Second

// SQLite is the engine for modernc.org/sqlite.
//
// Transactions are started with explicit BEGIN statements so the deferred
// flag can choose between BEGIN DEFERRED and BEGIN IMMEDIATE per
// transaction. Without a flag the transaction is immediate, except for
// read-uncommitted and read-only transactions which default to deferred.
type SQLite struct {
	// BusyTimeout bounds how long a statement waits on a locked database.
	// Zero means five seconds.
	BusyTimeout time.Duration

	// Pragmas are extra statements run on every new connection,
	// e.g. "PRAGMA synchronous = NORMAL".
	Pragmas []string
}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

// Open creates the parent directory of file databases before opening.
func (e SQLite) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if path := sqliteFilePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	return Open(ctx, e.DriverName(), dsn)
}

// Connect enables foreign keys and WAL mode (a no-op for in-memory
// databases), sets the busy timeout and, for read-only connections, turns
// on query_only.
func (e SQLite) Connect(ctx context.Context, conn *sql.Conn, readOnly bool) error {
	timeout := e.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}

	stmts := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	stmts = append(stmts, e.Pragmas...)
	if readOnly {
		stmts = append(stmts, "PRAGMA query_only = ON")
	}
	return execAll(ctx, conn, stmts...)
}

func (SQLite) Begin(ctx context.Context, conn *sql.Conn, opts TxOptions) (NativeTx, error) {
	readUncommitted := false
	switch opts.Isolation {
	case sql.LevelDefault, sql.LevelReadCommitted, sql.LevelRepeatableRead, sql.LevelSerializable:
		// SQLite transactions are serializable; weaker requests are promoted.
	case sql.LevelReadUncommitted:
		readUncommitted = true
	default:
		return nil, fmt.Errorf("%w: sqlite does not support %s", ErrUnsupportedIsolation, opts.Isolation)
	}

	deferred := readUncommitted || opts.ReadOnly
	if opts.Deferred != nil {
		deferred = *opts.Deferred
	}

	if err := execAll(ctx, conn, fmt.Sprintf("PRAGMA read_uncommitted = %d", boolToInt(readUncommitted))); err != nil {
		return nil, err
	}

	begin := "BEGIN IMMEDIATE"
	if deferred {
		begin = "BEGIN DEFERRED"
	}
	if _, err := conn.ExecContext(ctx, begin); err != nil {
		return nil, err
	}
	return &stmtTx{conn: conn}, nil
}

// Bind hands named parameters to the driver, which matches sql.Named values
// against @name, :name and $name placeholders.
func (SQLite) Bind(query string, params any) (string, []any, error) {
	args, err := namedArgs(params)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

func (SQLite) Diagnose(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	return sqliteCodeName(se.Code()), true
}

var sqliteCodeNames = map[int]string{
	sqlite3.SQLITE_ERROR:      "SQLITE_ERROR",
	sqlite3.SQLITE_INTERNAL:   "SQLITE_INTERNAL",
	sqlite3.SQLITE_PERM:       "SQLITE_PERM",
	sqlite3.SQLITE_ABORT:      "SQLITE_ABORT",
	sqlite3.SQLITE_BUSY:       "SQLITE_BUSY",
	sqlite3.SQLITE_LOCKED:     "SQLITE_LOCKED",
	sqlite3.SQLITE_NOMEM:      "SQLITE_NOMEM",
	sqlite3.SQLITE_READONLY:   "SQLITE_READONLY",
	sqlite3.SQLITE_INTERRUPT:  "SQLITE_INTERRUPT",
	sqlite3.SQLITE_IOERR:      "SQLITE_IOERR",
	sqlite3.SQLITE_CORRUPT:    "SQLITE_CORRUPT",
	sqlite3.SQLITE_FULL:       "SQLITE_FULL",
	sqlite3.SQLITE_CANTOPEN:   "SQLITE_CANTOPEN",
	sqlite3.SQLITE_SCHEMA:     "SQLITE_SCHEMA",
	sqlite3.SQLITE_TOOBIG:     "SQLITE_TOOBIG",
	sqlite3.SQLITE_CONSTRAINT: "SQLITE_CONSTRAINT",
	sqlite3.SQLITE_MISMATCH:   "SQLITE_MISMATCH",
	sqlite3.SQLITE_MISUSE:     "SQLITE_MISUSE",
	sqlite3.SQLITE_RANGE:      "SQLITE_RANGE",
}

// sqliteCodeName names the primary result code; extended codes keep their
// primary code in the low byte.
func sqliteCodeName(code int) string {
	if name, ok := sqliteCodeNames[code&0xff]; ok {
		return name
	}
	return fmt.Sprintf("SQLITE_%d", code)
}

// sqliteFilePath returns the file behind dsn, or "" for in-memory databases.
func sqliteFilePath(dsn string) string {
	if dsn == "" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
