package repository

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository[T] used by tests that
// want to exercise the event store/outbox/inbox protocol without a live
// Postgres instance. Spec filtering is delegated to a predicate instead
// of SQL, since there is no query planner to hand a WHERE fragment to.
//
// Grounded in eval-engine/internal/store/memory.go's mutex-guarded map
// style.
type MemoryRepository[T any] struct {
	mu      sync.Mutex
	rows    []T
	matches func(row T, spec Spec) bool
	apply   func(row *T, set map[string]any)
}

// NewMemoryRepository builds an in-memory repository. matches decides
// whether a row satisfies a Spec (tests pass specs with a sentinel
// Where string the in-memory predicate switches on); apply mutates a row
// in place for BulkUpdate.
func NewMemoryRepository[T any](matches func(T, Spec) bool, apply func(*T, map[string]any)) *MemoryRepository[T] {
	return &MemoryRepository[T]{matches: matches, apply: apply}
}

func (r *MemoryRepository[T]) Insert(ctx context.Context, rows []T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *MemoryRepository[T]) Query(ctx context.Context, spec Spec) (Cursor[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []T
	for _, row := range r.rows {
		if r.matches(row, spec) {
			matched = append(matched, row)
		}
	}
	if spec.Limit > 0 && len(matched) > spec.Limit {
		matched = matched[:spec.Limit]
	}
	return &memoryCursor[T]{rows: matched, idx: -1}, nil
}

func (r *MemoryRepository[T]) QueryFirst(ctx context.Context, spec Spec) (T, bool, error) {
	spec.Limit = 1
	cur, err := r.Query(ctx, spec)
	var zero T
	if err != nil {
		return zero, false, err
	}
	defer cur.Close()
	if !cur.Next(ctx) {
		return zero, false, nil
	}
	return cur.Value(), true, nil
}

func (r *MemoryRepository[T]) Exists(ctx context.Context, spec Spec) (bool, error) {
	_, ok, err := r.QueryFirst(ctx, spec)
	return ok, err
}

func (r *MemoryRepository[T]) BulkUpdate(ctx context.Context, spec Spec, set map[string]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.matches(r.rows[i], spec) {
			r.apply(&r.rows[i], set)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository[T]) Delete(ctx context.Context, spec Spec) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	var n int64
	for _, row := range r.rows {
		if r.matches(row, spec) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

type memoryCursor[T any] struct {
	rows []T
	idx  int
}

func (c *memoryCursor[T]) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.idx++
	return c.idx < len(c.rows)
}

func (c *memoryCursor[T]) Value() T     { return c.rows[c.idx] }
func (c *memoryCursor[T]) Err() error   { return nil }
func (c *memoryCursor[T]) Close() error { return nil }
