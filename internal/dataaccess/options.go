package dataaccess

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// IsolationLevel is the isolation level of a transaction.
type IsolationLevel = sql.IsolationLevel

const (
	LevelDefault         = sql.LevelDefault
	LevelReadUncommitted = sql.LevelReadUncommitted
	LevelReadCommitted   = sql.LevelReadCommitted
	LevelWriteCommitted  = sql.LevelWriteCommitted
	LevelRepeatableRead  = sql.LevelRepeatableRead
	LevelSnapshot        = sql.LevelSnapshot
	LevelSerializable    = sql.LevelSerializable
	LevelLinearizable    = sql.LevelLinearizable
)

// ParseIsolationLevel accepts level names in any case, with words separated
// by spaces, dashes or underscores ("read-committed", "ReadCommitted").
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	want := normalizeLevel(s)
	if want == "" {
		return LevelDefault, nil
	}
	for l := LevelDefault; l <= LevelLinearizable; l++ {
		if normalizeLevel(l.String()) == want {
			return l, nil
		}
	}
	return LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

func normalizeLevel(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(s)))
}

type txConfig struct {
	isolation IsolationLevel
	deferred  *bool
	readOnly  bool
}

// TxOption configures BeginTx.
type TxOption func(*txConfig)

// WithIsolation sets the transaction's isolation level. Without it the
// engine default applies.
func WithIsolation(level IsolationLevel) TxOption {
	return func(c *txConfig) { c.isolation = level }
}

// WithDeferred chooses whether the engine acquires its locks lazily, on the
// first statement that needs them, or when the transaction begins. Only
// SQLite distinguishes the two; other engines ignore the flag.
func WithDeferred(deferred bool) TxOption {
	return func(c *txConfig) { c.deferred = &deferred }
}

// WithReadOnly begins a read-only transaction. Connections of a read-only
// Kind always do.
func WithReadOnly() TxOption {
	return func(c *txConfig) { c.readOnly = true }
}

type config struct {
	logger *slog.Logger
}

// Option configures a Connection or a Factory.
type Option func(*config)

// WithLogger sets the logger for statements and transaction lifecycle
// events. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
