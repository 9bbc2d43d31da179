package dataaccess

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/dax/internal/db"
)

var errCursorClose = errors.New("cursor close failed")

// brokenCursorConnector hands out connections whose result sets count up
// forever and fail to close.
type brokenCursorConnector struct{}

func (brokenCursorConnector) Connect(context.Context) (driver.Conn, error) { return brokenCursorConn{}, nil }
func (brokenCursorConnector) Driver() driver.Driver                        { return brokenCursorDriver{} }

type brokenCursorDriver struct{}

func (brokenCursorDriver) Open(string) (driver.Conn, error) { return brokenCursorConn{}, nil }

type brokenCursorConn struct{}

func (brokenCursorConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (brokenCursorConn) Close() error                        { return nil }
func (brokenCursorConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (brokenCursorConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &brokenCursorRows{}, nil
}

type brokenCursorRows struct{ n int64 }

func (*brokenCursorRows) Columns() []string { return []string{"n"} }
func (*brokenCursorRows) Close() error      { return errCursorClose }

func (r *brokenCursorRows) Next(dest []driver.Value) error {
	r.n++
	dest[0] = r.n
	return nil
}

// executorOnly runs every operation on a fixed executor.
type executorOnly struct{ x *executor }

func (q executorOnly) Execute(ctx context.Context, query string, params any) error {
	return execute(ctx, q, query, params)
}

func (q executorOnly) ExecuteReader(ctx context.Context, query string, params any) (*Reader, error) {
	return executeReader(ctx, q, query, params)
}

func (q executorOnly) prepare(context.Context, string) (*executor, error) { return q.x, nil }

func brokenCursorQueryable(t *testing.T) executorOnly {
	t.Helper()
	pool := sql.OpenDB(brokenCursorConnector{})
	t.Cleanup(func() { pool.Close() })
	return executorOnly{x: &executor{
		engine:   db.SQLite{},
		dbtx:     pool,
		logger:   slog.New(slog.DiscardHandler),
		kind:     ReadWrite{}.Name(),
		lifetime: context.Background(),
	}}
}

func TestStream_CloseReportsCursorFailure(t *testing.T) {
	q := brokenCursorQueryable(t)

	stream, err := QueryUnbuffered[int64](context.Background(), q, `SELECT n`, nil)
	require.NoError(t, err)
	require.True(t, stream.Next())
	assert.Equal(t, int64(1), stream.Value())

	err = stream.Close()
	require.ErrorIs(t, err, ErrExecution)
	require.ErrorIs(t, err, errCursorClose)
	require.NoError(t, stream.Close(), "only the first close reports")
	assert.NoError(t, stream.Err(), "a close failure does not rewrite the iteration's outcome")
}

func TestReader_CloseReportsCursorFailure(t *testing.T) {
	q := brokenCursorQueryable(t)

	reader, err := q.ExecuteReader(context.Background(), `SELECT n`, nil)
	require.NoError(t, err)
	require.True(t, reader.Next())

	err = reader.Close()
	require.ErrorIs(t, err, ErrExecution)
	require.ErrorIs(t, err, errCursorClose)
}
