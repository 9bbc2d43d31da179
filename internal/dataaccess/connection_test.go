package dataaccess_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/dax/internal/dataaccess"
	"github.com/alexanderramin/dax/internal/testutil"
)

const selectAccounts = `SELECT id, owner, balance, note FROM accounts ORDER BY id`

// countAccounts reads the row count through a fresh connection, so it only
// sees committed data.
func countAccounts(t *testing.T, dsn string) int {
	t.Helper()
	reader := dataaccess.NewConnection[dataaccess.ReadOnly](testutil.TestEngine, dsn)
	defer reader.Close()

	n, ok, err := dataaccess.ExecuteScalar[int](context.Background(), reader, `SELECT COUNT(*) FROM accounts`, nil)
	require.NoError(t, err)
	require.True(t, ok)
	return n
}

func TestConnection_OpensLazily(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, dsn)
	assert.Equal(t, dataaccess.StateNew, conn.State())

	testutil.InsertAccounts(t, conn, testutil.NewTestAccount("alice"))
	assert.Equal(t, dataaccess.StateOpen, conn.State())
	assert.Equal(t, 1, countAccounts(t, dsn))
}

func TestConnection_ExplicitOpenIsIdempotent(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t))
	ctx := context.Background()

	require.NoError(t, conn.Open(ctx))
	require.NoError(t, conn.Open(ctx))
	assert.Equal(t, dataaccess.StateOpen, conn.State())
}

func TestConnection_CloseIsTerminal(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t))
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")
	assert.Equal(t, dataaccess.StateClosed, conn.State())

	err := conn.Execute(ctx, `DELETE FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)

	_, err = dataaccess.Query[testutil.Account](ctx, conn, selectAccounts, nil)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)

	_, err = conn.BeginTx(ctx)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)

	require.ErrorIs(t, conn.Open(ctx), dataaccess.ErrInvalidState)
}

func TestConnection_CloseBeforeOpen(t *testing.T) {
	conn := dataaccess.NewConnection[dataaccess.ReadWrite](testutil.TestEngine, testutil.NewTestDSN(t))
	require.NoError(t, conn.Close())

	err := conn.Execute(context.Background(), `SELECT 1`, nil)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)
}

func TestConnection_OpenFailureIsExecutionError(t *testing.T) {
	// The database's parent "directory" is a regular file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, filepath.Join(blocker, "test.db"))

	err := conn.Execute(context.Background(), `SELECT 1`, nil)
	require.ErrorIs(t, err, dataaccess.ErrExecution)
	assert.Equal(t, dataaccess.StateNew, conn.State())
}

func TestConnection_CloseWithOpenReaderDoesNotBlock(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, dsn)
	ctx := context.Background()
	testutil.InsertAccounts(t, conn, testutil.NewTestAccount("alice"), testutil.NewTestAccount("bob"))

	reader, err := conn.ExecuteReader(ctx, selectAccounts, nil)
	require.NoError(t, err)
	require.True(t, reader.Next())

	stream, err := dataaccess.QueryUnbuffered[testutil.Account](ctx, conn, selectAccounts, nil)
	require.NoError(t, err)
	require.True(t, stream.Next())

	require.NoError(t, conn.Close())

	assert.False(t, stream.Next())
	require.ErrorIs(t, stream.Err(), dataaccess.ErrInvalidState)
	require.NoError(t, stream.Close())
	reader.Close()
}

func TestConnection_AmbientStatementsRefusedDuringTransaction(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, dsn)
	ctx := context.Background()

	tx, err := conn.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Close()

	err = conn.Execute(ctx, `DELETE FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, conn.Execute(ctx, `DELETE FROM accounts`, nil), "ambient statements work again after commit")
}

func TestConnection_ReadOnlyKindRefusesWrites(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	ro := testutil.NewTestConnection[dataaccess.ReadOnly](t, dsn)
	ctx := context.Background()

	err := ro.Execute(ctx, testutil.InsertAccountSQL, testutil.NewTestAccount("mallory"))
	require.ErrorIs(t, err, dataaccess.ErrExecution)

	var de *dataaccess.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "SQLITE_READONLY", de.Code)
	assert.Equal(t, "execute", de.Op)

	tx, err := ro.BeginTx(ctx)
	require.NoError(t, err, "read-only transactions begin deferred")
	defer tx.Close()
	assert.True(t, tx.ReadOnly())

	n, ok, err := dataaccess.ExecuteScalar[int](ctx, tx, `SELECT COUNT(*) FROM accounts`, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestConnection_ExecutionErrorCarriesEngineCode(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t))
	ctx := context.Background()

	acct := testutil.NewTestAccount("alice")
	testutil.InsertAccounts(t, conn, acct)

	err := conn.Execute(ctx, testutil.InsertAccountSQL, acct)
	require.ErrorIs(t, err, dataaccess.ErrExecution)
	var de *dataaccess.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "SQLITE_CONSTRAINT", de.Code)
	assert.Equal(t, testutil.InsertAccountSQL, de.Query)
	assert.Contains(t, err.Error(), "[SQLITE_CONSTRAINT]")

	err = conn.Execute(ctx, `SELEC nonsense`, nil)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "SQLITE_ERROR", de.Code)
}

func TestConnection_UnsupportedParams(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t))

	err := conn.Execute(context.Background(), `SELECT 1`, 42)
	require.ErrorIs(t, err, dataaccess.ErrExecution)
}

func TestConnection_LogsStatements(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t), dataaccess.WithLogger(logger))
	ctx := context.Background()

	require.NoError(t, conn.Execute(ctx, `DELETE FROM accounts`, nil))
	out := buf.String()
	assert.Contains(t, out, "connection opened")
	assert.Contains(t, out, "msg=statement")
	assert.Contains(t, out, "op=execute")
	assert.Contains(t, out, "engine=sqlite")
	assert.Contains(t, out, "kind=read_write")

	buf.Reset()
	require.Error(t, conn.Execute(ctx, `DELETE FROM missing_table`, nil))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `msg="statement failed"`)
}

func TestConnection_WorksThroughQuerier(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, dsn)
	ctx := context.Background()

	insert := func(q dataaccess.Querier[dataaccess.ReadWrite], owner string) {
		t.Helper()
		testutil.InsertAccounts(t, q, testutil.NewTestAccount(owner))
	}

	insert(conn, "ambient")
	require.NoError(t, conn.WithinTx(ctx, func(ctx context.Context, tx *dataaccess.Transaction[dataaccess.ReadWrite]) error {
		insert(tx, "in-tx")
		return nil
	}))

	owners, err := dataaccess.Query[string](ctx, conn, `SELECT owner FROM accounts ORDER BY owner`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ambient", "in-tx"}, owners)
}
