package db

import (
	"context"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQL_OpenRejectsMalformedDSN(t *testing.T) {
	_, err := MySQL{}.Open(context.Background(), "not a dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing mysql dsn")
}

func TestMySQL_Bind(t *testing.T) {
	q, args, err := MySQL{}.Bind(`UPDATE accounts SET balance = :balance WHERE id = :id`, map[string]any{"id": "a1", "balance": 5})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE accounts SET balance = ? WHERE id = ?`, q)
	assert.Equal(t, []any{5, "a1"}, args)
}

func TestMySQL_Diagnose(t *testing.T) {
	err := fmt.Errorf("inserting: %w", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	code, ok := MySQL{}.Diagnose(err)
	require.True(t, ok)
	assert.Equal(t, "1062", code)

	_, ok = MySQL{}.Diagnose(assert.AnError)
	assert.False(t, ok)
}
