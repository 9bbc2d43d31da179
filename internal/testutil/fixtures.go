package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alexanderramin/dax/internal/dataaccess"
)

// AccountsSchema is the table most tests run against.
const AccountsSchema = `CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	note    TEXT
)`

// Account is a row of the accounts table.
type Account struct {
	ID      string         `db:"id"`
	Owner   string         `db:"owner"`
	Balance int64          `db:"balance"`
	Note    sql.NullString `db:"note"`
}

// InsertAccountSQL inserts an Account bound by name.
const InsertAccountSQL = `INSERT INTO accounts (id, owner, balance, note) VALUES (:id, :owner, :balance, :note)`

var testAccountCounter atomic.Int64

// Account options
type AccountOption func(*Account)

func WithBalance(b int64) AccountOption {
	return func(a *Account) {
		a.Balance = b
	}
}

func WithNote(n string) AccountOption {
	return func(a *Account) {
		a.Note = sql.NullString{String: n, Valid: true}
	}
}

func WithAccountID(id string) AccountOption {
	return func(a *Account) {
		a.ID = id
	}
}

func NewTestAccount(owner string, opts ...AccountOption) *Account {
	a := &Account{
		ID:      fmt.Sprintf("acct-%03d", testAccountCounter.Add(1)),
		Owner:   owner,
		Balance: 100,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InsertAccounts writes accounts through q, failing the test on error.
func InsertAccounts(t *testing.T, q dataaccess.Queryable, accounts ...*Account) {
	t.Helper()
	for _, a := range accounts {
		if err := q.Execute(context.Background(), InsertAccountSQL, a); err != nil {
			t.Fatalf("failed to insert account %s: %v", a.ID, err)
		}
	}
}
