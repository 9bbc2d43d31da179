package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQL is the engine for github.com/go-sql-driver/mysql.
// The driver has no named placeholders, so map and struct parameters are
// written against :name and rebound to '?'. The deferred flag has no MySQL
// counterpart and is ignored.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (e MySQL) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := mysqldriver.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	return Open(ctx, e.DriverName(), dsn)
}

func (MySQL) Connect(ctx context.Context, conn *sql.Conn, readOnly bool) error {
	if !readOnly {
		return nil
	}
	return execAll(ctx, conn, "SET SESSION TRANSACTION READ ONLY")
}

func (MySQL) Begin(ctx context.Context, conn *sql.Conn, opts TxOptions) (NativeTx, error) {
	return beginSQL(ctx, conn, opts)
}

func (MySQL) Bind(query string, params any) (string, []any, error) {
	return rebindNamed(sqlx.QUESTION, query, params)
}

func (MySQL) Diagnose(err error) (string, bool) {
	var me *mysqldriver.MySQLError
	if !errors.As(err, &me) {
		return "", false
	}
	return strconv.Itoa(int(me.Number)), true
}
