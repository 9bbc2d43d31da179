package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alexanderramin/dax/internal/db"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateNew State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connection owns one physical database connection. Statements run on it
// directly execute in auto-commit mode; BeginTx starts an explicit
// transaction on the same physical connection.
//
// A Connection opens itself on first use. Close is terminal and must be
// called on every path, typically with defer. A Connection is meant for one
// logical operation at a time.
type Connection[K Kind] struct {
	kind   K
	engine db.Engine
	dsn    string
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	pool     *sql.DB
	conn     *sql.Conn
	lifetime context.Context
	cancel   context.CancelCauseFunc
	active   *Transaction[K]
}

var (
	_ Querier[ReadWrite]    = (*Connection[ReadWrite])(nil)
	_ UnitOfWork[ReadWrite] = (*Connection[ReadWrite])(nil)
)

// NewConnection returns an unopened connection to dsn through engine.
func NewConnection[K Kind](engine db.Engine, dsn string, opts ...Option) *Connection[K] {
	cfg := newConfig(opts)
	return &Connection[K]{
		engine: engine,
		dsn:    dsn,
		logger: cfg.logger.With("engine", engine.Name()),
	}
}

// Kind returns the connection's kind.
func (c *Connection[K]) Kind() K { return c.kind }

// State returns the connection's lifecycle state.
func (c *Connection[K]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open opens the connection if it is not open yet. Operations call it
// implicitly.
func (c *Connection[K]) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx)
}

func (c *Connection[K]) openLocked(ctx context.Context) error {
	switch c.state {
	case StateOpen:
		return nil
	case StateClosed:
		return newError(ErrInvalidState, "open", "", errClosed)
	}

	pool, err := c.engine.Open(ctx, c.dsn)
	if err != nil {
		return classify(ctx, c.engine, "open", "", err)
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		pool.Close()
		return classify(ctx, c.engine, "open", "", err)
	}
	if err := c.engine.Connect(ctx, conn, c.kind.ReadOnly()); err != nil {
		conn.Close()
		pool.Close()
		return classify(ctx, c.engine, "open", "", err)
	}

	c.pool, c.conn = pool, conn
	c.lifetime, c.cancel = context.WithCancelCause(context.Background())
	c.state = StateOpen
	c.logger.InfoContext(ctx, "connection opened", "kind", c.kind.Name())
	return nil
}

// Close rolls back an active transaction, then closes the physical
// connection. Later operations fail with ErrInvalidState. Close is
// idempotent.
func (c *Connection[K]) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	wasOpen := c.state == StateOpen
	pool, conn, cancel, active := c.pool, c.conn, c.cancel, c.active
	c.state = StateClosed
	c.pool, c.conn, c.active = nil, nil, nil
	c.mu.Unlock()

	if !wasOpen {
		return nil
	}

	// Ends every open cursor; database/sql will not close a connection
	// while one is still reading.
	cancel(errClosed)
	if active != nil {
		active.abandon()
	}

	var errs []error
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("closing connection: %w", err))
	}
	if err := pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing pool: %w", err))
	}
	c.logger.Info("connection closed", "kind", c.kind.Name())
	return errors.Join(errs...)
}

// BeginTx opens the connection if needed and begins a transaction on it.
// Only one transaction per connection can be active; beginning another
// fails with ErrTransactionState. The context bounds the begin itself, not
// the transaction's lifetime.
func (c *Connection[K]) BeginTx(ctx context.Context, opts ...TxOption) (*Transaction[K], error) {
	cfg := txConfig{isolation: LevelDefault}
	for _, opt := range opts {
		opt(&cfg)
	}
	if c.kind.ReadOnly() {
		cfg.readOnly = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openLocked(ctx); err != nil {
		return nil, err
	}
	if c.active != nil {
		return nil, newError(ErrTransactionState, "begin", "", errTxActive)
	}

	native, err := c.engine.Begin(ctx, c.conn, db.TxOptions{
		Isolation: cfg.isolation,
		ReadOnly:  cfg.readOnly,
		Deferred:  cfg.deferred,
	})
	if err != nil {
		out := classify(ctx, c.engine, "begin", "", err)
		c.logger.ErrorContext(ctx, "begin failed", "kind", c.kind.Name(), "error", out)
		return nil, out
	}

	tx := &Transaction[K]{
		id:        uuid.New(),
		conn:      c,
		handle:    c.conn,
		native:    native,
		isolation: cfg.isolation,
		deferred:  cfg.deferred,
		readOnly:  cfg.readOnly,
	}
	tx.lifetime, tx.end = context.WithCancelCause(c.lifetime)
	tx.logger = c.logger.With("tx", tx.id.String())
	c.active = tx

	attrs := []any{"kind", c.kind.Name(), "isolation", cfg.isolation.String(), "read_only", cfg.readOnly}
	if cfg.deferred != nil {
		attrs = append(attrs, "deferred", *cfg.deferred)
	}
	tx.logger.InfoContext(ctx, "transaction begun", attrs...)
	return tx, nil
}

// Execute runs a statement that returns no rows in auto-commit mode.
func (c *Connection[K]) Execute(ctx context.Context, query string, params any) error {
	return execute(ctx, c, query, params)
}

// ExecuteReader runs a query in auto-commit mode and returns the raw
// cursor. The caller must close it.
func (c *Connection[K]) ExecuteReader(ctx context.Context, query string, params any) (*Reader, error) {
	return executeReader(ctx, c, query, params)
}

// prepare opens the connection if needed. Auto-commit statements are
// refused while a transaction is active, as they would silently run inside
// it.
func (c *Connection[K]) prepare(ctx context.Context, op string) (*executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openLocked(ctx); err != nil {
		return nil, err
	}
	if c.active != nil {
		return nil, newError(ErrInvalidState, op, "", errTxActive)
	}
	return &executor{
		engine:   c.engine,
		dbtx:     c.conn,
		logger:   c.logger,
		kind:     c.kind.Name(),
		lifetime: c.lifetime,
	}, nil
}

// holds reports whether handle is still the connection's physical handle.
func (c *Connection[K]) holds(handle *sql.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn == handle
}

func (c *Connection[K]) detach(tx *Transaction[K]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == tx {
		c.active = nil
	}
}
