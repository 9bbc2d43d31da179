package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Driver names for the PostgreSQL engine.
const (
	DriverPq  = "postgres"
	DriverPgx = "pgx"
)

// Postgres is the engine for PostgreSQL, through lib/pq (the default) or
// the pgx stdlib driver. Map and struct parameters are written against
// :name and rebound to $n. The deferred flag is ignored.
type Postgres struct {
	// Driver is DriverPq or DriverPgx. Empty means DriverPq.
	Driver string
}

func (Postgres) Name() string { return "postgres" }

func (e Postgres) DriverName() string {
	if e.Driver == "" {
		return DriverPq
	}
	return e.Driver
}

// Open validates dsn with the selected driver's own parser first, so a
// malformed descriptor fails before any network round trip.
func (e Postgres) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	switch e.DriverName() {
	case DriverPgx:
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return nil, fmt.Errorf("parsing pgx dsn: %w", err)
		}
	default:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			converted, err := pq.ParseURL(dsn)
			if err != nil {
				return nil, fmt.Errorf("parsing postgres url: %w", err)
			}
			dsn = converted
		}
	}
	return Open(ctx, e.DriverName(), dsn)
}

func (Postgres) Connect(ctx context.Context, conn *sql.Conn, readOnly bool) error {
	if !readOnly {
		return nil
	}
	return execAll(ctx, conn, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY")
}

func (Postgres) Begin(ctx context.Context, conn *sql.Conn, opts TxOptions) (NativeTx, error) {
	return beginSQL(ctx, conn, opts)
}

func (Postgres) Bind(query string, params any) (string, []any, error) {
	return rebindNamed(sqlx.DOLLAR, query, params)
}

// Diagnose returns the SQLSTATE of pq and pgx errors.
func (Postgres) Diagnose(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}
