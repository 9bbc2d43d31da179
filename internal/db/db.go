package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Open opens a pool for driverName and verifies it with a ping.
// The pool is capped at one connection: a dataaccess.Connection pins that
// connection for its whole lifetime, so nothing else should compete for it.
func Open(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// execAll runs each statement on conn in order.
func execAll(ctx context.Context, conn *sql.Conn, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}
