package dataaccess

import (
	"context"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
)

// Stream is a lazy, forward-only, single-pass result set. Each call to Next
// fetches one row from the engine; nothing is read ahead. The query context
// is checked before every fetch, so cancelling it stops a long iteration
// between rows.
//
// A Stream must be closed. Running QueryUnbuffered again executes the
// statement again; a Stream itself cannot be restarted.
type Stream[T any] struct {
	ctx     context.Context
	x       *executor
	query   string
	rows    *sqlx.Rows
	release func()
	plan    scanPlan

	cur      T
	err      error
	done     bool
	consumed bool
}

// QueryUnbuffered runs a query and returns a Stream over its rows.
func QueryUnbuffered[T any](ctx context.Context, q Queryable, query string, params any) (*Stream[T], error) {
	const op = "query_unbuffered"
	x, err := q.prepare(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, release, err := x.query(ctx, op, query, params)
	if err != nil {
		return nil, err
	}
	return &Stream[T]{
		ctx:     ctx,
		x:       x,
		query:   query,
		rows:    rows,
		release: release,
		plan:    planFor[T](),
	}, nil
}

// Next advances to the next row. It returns false at the end of the result
// set or on error; check Err afterwards.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(s.x.fail(s.ctx, "query_unbuffered", s.query, time.Now(), err))
		return false
	}
	if err := s.x.lifetime.Err(); err != nil {
		s.finish(s.x.fail(s.ctx, "query_unbuffered", s.query, time.Now(), err))
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.finish(s.x.fail(s.ctx, "query_unbuffered", s.query, time.Now(), err))
		} else {
			s.finish(nil)
		}
		return false
	}
	v, err := scanRow[T](s.rows, s.plan)
	if err != nil {
		s.finish(s.x.mappingError(s.ctx, "query_unbuffered", s.query, err))
		return false
	}
	s.cur = v
	return true
}

// Value returns the row Next advanced to.
func (s *Stream[T]) Value() T { return s.cur }

// Err returns the error that ended the iteration, if any.
func (s *Stream[T]) Err() error { return s.err }

// Columns returns the result set's column names.
func (s *Stream[T]) Columns() ([]string, error) { return s.rows.Columns() }

// Close releases the cursor and reports whether closing it failed. It is
// safe to call more than once; only the first call can fail.
func (s *Stream[T]) Close() error {
	return s.finish(nil)
}

// finish records err as the iteration's outcome and releases the cursor.
func (s *Stream[T]) finish(err error) error {
	if s.err == nil {
		s.err = err
	}
	if s.done {
		return nil
	}
	s.done = true
	closeErr := s.rows.Close()
	s.release()
	if closeErr != nil {
		return classify(s.ctx, s.x.engine, "query_unbuffered", s.query, closeErr)
	}
	return nil
}

// All adapts the stream to a range-over-func sequence and closes it when the
// loop ends. The sequence can be ranged once; ranging it again yields a
// single ErrStreamConsumed error.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if s.consumed {
			yield(zero, newError(ErrStreamConsumed, "query_unbuffered", s.query, nil))
			return
		}
		s.consumed = true
		defer s.Close()

		for s.Next() {
			if !yield(s.cur, nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(zero, err)
		}
	}
}
