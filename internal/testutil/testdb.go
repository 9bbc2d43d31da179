package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexanderramin/dax/internal/dataaccess"
	"github.com/alexanderramin/dax/internal/db"
)

// TestEngine is the SQLite engine tests run against. The short busy timeout
// keeps lock-contention tests fast.
var TestEngine = db.SQLite{BusyTimeout: 200 * time.Millisecond}

// NewTestDSN returns the DSN of a fresh SQLite database file in the test's
// temp directory. Several connections opened on it see the same data.
func NewTestDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// NewTestConnection creates an unopened connection of kind K to dsn.
// The connection is closed when the test completes.
func NewTestConnection[K dataaccess.Kind](t *testing.T, dsn string, opts ...dataaccess.Option) *dataaccess.Connection[K] {
	t.Helper()
	return NewTestConnectionWith[K](t, TestEngine, dsn, opts...)
}

// NewTestConnectionWith is NewTestConnection with a custom engine.
func NewTestConnectionWith[K dataaccess.Kind](t *testing.T, engine db.Engine, dsn string, opts ...dataaccess.Option) *dataaccess.Connection[K] {
	t.Helper()
	conn := dataaccess.NewConnection[K](engine, dsn, opts...)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// NewTestDB creates a database file with the accounts schema applied and
// returns its DSN.
func NewTestDB(t *testing.T) string {
	t.Helper()
	dsn := NewTestDSN(t)
	conn := dataaccess.NewConnection[dataaccess.ReadWrite](TestEngine, dsn)
	defer conn.Close()
	if err := conn.Execute(context.Background(), AccountsSchema, nil); err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	return dsn
}
