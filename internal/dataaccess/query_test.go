package dataaccess_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/dax/internal/dataaccess"
	"github.com/alexanderramin/dax/internal/testutil"
)

func seededConnection(t *testing.T, accounts ...*testutil.Account) *dataaccess.Connection[dataaccess.ReadWrite] {
	t.Helper()
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDB(t))
	testutil.InsertAccounts(t, conn, accounts...)
	return conn
}

func TestQuery_MapsRowsToStructs(t *testing.T) {
	alice := testutil.NewTestAccount("alice", testutil.WithAccountID("a1"), testutil.WithNote("first"))
	bob := testutil.NewTestAccount("bob", testutil.WithAccountID("a2"), testutil.WithBalance(5))
	conn := seededConnection(t, alice, bob)
	ctx := context.Background()

	got, err := dataaccess.Query[testutil.Account](ctx, conn, selectAccounts, nil)
	require.NoError(t, err)
	assert.Equal(t, []testutil.Account{*alice, *bob}, got)

	ptrs, err := dataaccess.Query[*testutil.Account](ctx, conn, selectAccounts, nil)
	require.NoError(t, err)
	require.Len(t, ptrs, 2)
	assert.Equal(t, alice, ptrs[0])
}

func TestQuery_ParameterShapes(t *testing.T) {
	conn := seededConnection(t,
		testutil.NewTestAccount("alice", testutil.WithBalance(10)),
		testutil.NewTestAccount("bob", testutil.WithBalance(20)),
		testutil.NewTestAccount("carol", testutil.WithBalance(30)),
	)
	ctx := context.Background()

	tests := []struct {
		name   string
		query  string
		params any
		want   []string
	}{
		{"nil", `SELECT owner FROM accounts ORDER BY owner`, nil, []string{"alice", "bob", "carol"}},
		{"map with @", `SELECT owner FROM accounts WHERE balance >= @min ORDER BY owner`, map[string]any{"min": 20}, []string{"bob", "carol"}},
		{"map with :", `SELECT owner FROM accounts WHERE balance < :max ORDER BY owner`, map[string]any{"max": 20}, []string{"alice"}},
		{"map with $", `SELECT owner FROM accounts WHERE owner = $owner`, map[string]any{"owner": "bob"}, []string{"bob"}},
		{"typed map", `SELECT owner FROM accounts WHERE balance = @b`, map[string]int{"b": 30}, []string{"carol"}},
		{"struct", `SELECT owner FROM accounts WHERE balance BETWEEN :lo AND :hi ORDER BY owner`, struct {
			Lo int `db:"lo"`
			Hi int `db:"hi"`
		}{Lo: 15, Hi: 35}, []string{"bob", "carol"}},
		{"positional", `SELECT owner FROM accounts WHERE balance > ? AND balance < ?`, []any{10, 30}, []string{"bob"}},
		{"named arg", `SELECT owner FROM accounts WHERE owner = :o`, sql.Named("o", "alice"), []string{"alice"}},
		{"no rows", `SELECT owner FROM accounts WHERE balance > 1000`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dataaccess.Query[string](ctx, conn, tt.query, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_MapAndSliceRows(t *testing.T) {
	conn := seededConnection(t, testutil.NewTestAccount("alice", testutil.WithAccountID("a1"), testutil.WithBalance(7)))
	ctx := context.Background()

	maps, err := dataaccess.Query[map[string]any](ctx, conn, `SELECT id, balance FROM accounts`, nil)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "a1", maps[0]["id"])
	assert.EqualValues(t, 7, maps[0]["balance"])

	rows, err := dataaccess.Query[[]any](ctx, conn, `SELECT id, balance FROM accounts`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)
	assert.Equal(t, "a1", rows[0][0])
}

func TestQuery_MappingErrors(t *testing.T) {
	conn := seededConnection(t, testutil.NewTestAccount("alice"))
	ctx := context.Background()

	_, err := dataaccess.Query[int](ctx, conn, `SELECT balance, owner FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrMapping, "scalar target with two columns")

	_, err = dataaccess.Query[int](ctx, conn, `SELECT owner FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrMapping, "text into int")

	_, err = dataaccess.Query[testutil.Account](ctx, conn, `SELECT id, owner, balance, note, 1 AS extra FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrMapping, "column without a destination field")

	_, err = dataaccess.QuerySingle[int64](ctx, conn, `SELECT note FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrMapping, "NULL into int64")

	var de *dataaccess.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "query_single", de.Op)
}

func TestQuerySingle_Cardinality(t *testing.T) {
	conn := seededConnection(t,
		testutil.NewTestAccount("alice", testutil.WithAccountID("a1")),
		testutil.NewTestAccount("twin", testutil.WithAccountID("t1")),
		testutil.NewTestAccount("twin", testutil.WithAccountID("t2")),
	)
	ctx := context.Background()
	const byOwner = `SELECT id, owner, balance, note FROM accounts WHERE owner = :owner`

	_, err := dataaccess.QuerySingle[testutil.Account](ctx, conn, byOwner, map[string]any{"owner": "nobody"})
	require.ErrorIs(t, err, dataaccess.ErrCardinality)
	require.ErrorIs(t, err, sql.ErrNoRows)

	got, err := dataaccess.QuerySingle[testutil.Account](ctx, conn, byOwner, map[string]any{"owner": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	_, err = dataaccess.QuerySingle[testutil.Account](ctx, conn, byOwner, map[string]any{"owner": "twin"})
	require.ErrorIs(t, err, dataaccess.ErrCardinality)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}

func TestExecuteScalar(t *testing.T) {
	conn := seededConnection(t,
		testutil.NewTestAccount("alice", testutil.WithBalance(40)),
		testutil.NewTestAccount("bob", testutil.WithBalance(2)),
	)
	ctx := context.Background()

	total, ok, err := dataaccess.ExecuteScalar[int64](ctx, conn, `SELECT SUM(balance), COUNT(*) FROM accounts`, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), total)

	owner, ok, err := dataaccess.ExecuteScalar[string](ctx, conn, `SELECT owner, balance FROM accounts ORDER BY balance`, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", owner, "first column of the first row")

	_, ok, err = dataaccess.ExecuteScalar[int64](ctx, conn, `SELECT balance FROM accounts WHERE owner = 'nobody'`, nil)
	require.NoError(t, err)
	assert.False(t, ok, "no rows")

	_, ok, err = dataaccess.ExecuteScalar[string](ctx, conn, `SELECT note FROM accounts LIMIT 1`, nil)
	require.NoError(t, err)
	assert.False(t, ok, "NULL")

	_, _, err = dataaccess.ExecuteScalar[int64](ctx, conn, `SELECT owner FROM accounts`, nil)
	require.ErrorIs(t, err, dataaccess.ErrMapping)
}

func TestExecuteReader(t *testing.T) {
	conn := seededConnection(t,
		testutil.NewTestAccount("alice", testutil.WithAccountID("a1")),
		testutil.NewTestAccount("bob", testutil.WithAccountID("a2")),
	)
	ctx := context.Background()

	reader, err := conn.ExecuteReader(ctx, `SELECT id, owner FROM accounts ORDER BY id`, nil)
	require.NoError(t, err)
	defer reader.Close()

	cols, err := reader.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "owner"}, cols)

	var ids []string
	for reader.Next() {
		var id, owner string
		require.NoError(t, reader.Scan(&id, &owner))
		ids = append(ids, id)
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, []string{"a1", "a2"}, ids)

	require.NoError(t, reader.Close())
	require.NoError(t, reader.Close())
}

func TestQuery_CancelledBeforeStart(t *testing.T) {
	conn := seededConnection(t, testutil.NewTestAccount("alice"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dataaccess.Query[testutil.Account](ctx, conn, selectAccounts, nil)
	require.ErrorIs(t, err, dataaccess.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)

	require.ErrorIs(t, conn.Execute(ctx, `DELETE FROM accounts`, nil), dataaccess.ErrCancelled)

	n, _, err := dataaccess.ExecuteScalar[int](context.Background(), conn, `SELECT COUNT(*) FROM accounts`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the cancelled delete never ran")
}

func TestQuery_CancelledInsideTransactionCommitsNothing(t *testing.T) {
	dsn := testutil.NewTestDB(t)
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, dsn)

	err := conn.WithinTx(context.Background(), func(_ context.Context, tx *dataaccess.Transaction[dataaccess.ReadWrite]) error {
		testutil.InsertAccounts(t, tx, testutil.NewTestAccount("alice"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := dataaccess.Query[testutil.Account](ctx, tx, selectAccounts, nil)
		return err
	})
	require.ErrorIs(t, err, dataaccess.ErrCancelled)
	assert.Equal(t, 0, countAccounts(t, dsn))
}

func TestQuery_TimeoutWhileReadingIsCancelled(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDSN(t))

	for range 10 {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := dataaccess.Query[int](ctx, conn, countdown, nil)
		cancel()
		require.ErrorIs(t, err, dataaccess.ErrCancelled)
		require.NotErrorIs(t, err, dataaccess.ErrMapping)
	}

	n, _, err := dataaccess.ExecuteScalar[int](context.Background(), conn, `SELECT 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQuery_ConnectionClosedWhileReading(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDSN(t))
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	closed := make(chan error, 1)
	go func() {
		time.Sleep(30 * time.Millisecond)
		closed <- conn.Close()
	}()

	_, err := dataaccess.Query[int](ctx, conn, countdown, nil)
	require.ErrorIs(t, err, dataaccess.ErrInvalidState)
	require.NotErrorIs(t, err, dataaccess.ErrMapping)
	require.NoError(t, <-closed)
}

func TestExecuteReader_ErrIsClassified(t *testing.T) {
	conn := testutil.NewTestConnection[dataaccess.ReadWrite](t, testutil.NewTestDSN(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	reader, err := conn.ExecuteReader(ctx, countdown, nil)
	require.NoError(t, err)
	defer reader.Close()

	for reader.Next() {
	}
	require.ErrorIs(t, reader.Err(), dataaccess.ErrCancelled)
	require.ErrorIs(t, reader.Err(), context.DeadlineExceeded)
}
