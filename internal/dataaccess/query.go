package dataaccess

import (
	"context"
	"database/sql"
	"time"
)

// Query runs a query and maps every row to T before returning.
func Query[T any](ctx context.Context, q Queryable, query string, params any) ([]T, error) {
	const op = "query"
	x, err := q.prepare(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, release, err := x.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}
	defer release()
	defer rows.Close()

	plan := planFor[T]()
	var out []T
	for rows.Next() {
		v, err := scanRow[T](rows, plan)
		if err != nil {
			return nil, x.mappingError(ctx, op, query, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, x.fail(ctx, op, query, time.Now(), err)
	}
	return out, nil
}

// QuerySingle runs a query that must return exactly one row. Zero rows or
// more than one row fail with ErrCardinality; the zero-row error also
// matches sql.ErrNoRows.
func QuerySingle[T any](ctx context.Context, q Queryable, query string, params any) (T, error) {
	const op = "query_single"
	var zero T
	x, err := q.prepare(ctx, op)
	if err != nil {
		return zero, err
	}
	rows, release, err := x.query(ctx, op, query, params)
	if err != nil {
		return zero, err
	}
	defer release()
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, x.fail(ctx, op, query, time.Now(), err)
		}
		return zero, newError(ErrCardinality, op, query, sql.ErrNoRows)
	}
	v, err := scanRow[T](rows, planFor[T]())
	if err != nil {
		return zero, x.mappingError(ctx, op, query, err)
	}
	if rows.Next() {
		return zero, newError(ErrCardinality, op, query, errManyRows)
	}
	if err := rows.Err(); err != nil {
		return zero, x.fail(ctx, op, query, time.Now(), err)
	}
	return v, nil
}

// ExecuteScalar returns the first column of the first row. ok is false when
// the query returned no rows or the value is NULL; the remaining columns and
// rows are ignored.
func ExecuteScalar[T any](ctx context.Context, q Queryable, query string, params any) (value T, ok bool, err error) {
	const op = "execute_scalar"
	x, err := q.prepare(ctx, op)
	if err != nil {
		return value, false, err
	}
	rows, release, err := x.query(ctx, op, query, params)
	if err != nil {
		return value, false, err
	}
	defer release()
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return value, false, x.fail(ctx, op, query, time.Now(), err)
		}
		return value, false, nil
	}
	cols, err := rows.Columns()
	if err != nil {
		return value, false, x.fail(ctx, op, query, time.Now(), err)
	}

	var first sql.Null[T]
	dest := make([]any, len(cols))
	dest[0] = &first
	for i := 1; i < len(dest); i++ {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return value, false, x.mappingError(ctx, op, query, err)
	}
	return first.V, first.Valid, nil
}

// Reader is the raw forward cursor returned by ExecuteReader. It is a
// *sql.Rows whose Close also releases the statement's resources.
//
// Next and Scan are those of *sql.Rows. Err classifies the error that ended
// the iteration like every other operation, so an interrupted cursor matches
// ErrCancelled, or ErrInvalidState once the connection is closed.
type Reader struct {
	*sql.Rows
	ctx     context.Context
	x       *executor
	query   string
	release func()
}

// Err returns the error that ended the iteration, if any.
func (r *Reader) Err() error {
	err := r.Rows.Err()
	if err == nil {
		return nil
	}
	return r.x.fail(r.ctx, "execute_reader", r.query, time.Now(), err)
}

// Close closes the cursor. It is safe to call more than once.
func (r *Reader) Close() error {
	err := r.Rows.Close()
	r.release()
	if err != nil {
		return classify(r.ctx, r.x.engine, "execute_reader", r.query, err)
	}
	return nil
}

func executeReader(ctx context.Context, q Queryable, query string, params any) (*Reader, error) {
	const op = "execute_reader"
	x, err := q.prepare(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, release, err := x.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}
	return &Reader{Rows: rows.Rows, ctx: ctx, x: x, query: query, release: release}, nil
}

func execute(ctx context.Context, q Queryable, query string, params any) error {
	const op = "execute"
	x, err := q.prepare(ctx, op)
	if err != nil {
		return err
	}
	_, err = x.exec(ctx, op, query, params)
	return err
}
