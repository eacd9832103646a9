// Package repository is the typed data-access port the event store,
// outbox, and inbox are built on: insert a batch, query a lazy cursor,
// fetch the first match, check existence, bulk-update matching rows, and
// delete matching rows — every operation cancellable and able to
// participate in an ambient unit of work the caller controls.
//
// One reusable generic port backed by database/sql and lib/pq, plus an
// in-memory counterpart for tests, instead of one hand-written store per
// entity.
package repository

import "context"

// Spec describes a query or mutation target: a SQL WHERE fragment using
// ordinal placeholders ($1, $2, ...) and its bound arguments, with
// optional ordering, row limit, and FOR UPDATE SKIP LOCKED claiming.
//
// Callers own the fragment; the port does not attempt to build a generic
// query DSL on top of it — this mirrors how every store in the example
// pack hand-writes its SQL rather than going through an ORM.
type Spec struct {
	Where               string
	Args                []any
	OrderBy             string
	Limit               int
	ForUpdateSkipLocked bool
}

// Mapper binds a Go type T to a table's columns: the column list for
// INSERT, how to extract values from a T in that order, and how to
// reconstruct a T from a scanned row.
type Mapper[T any] interface {
	Columns() []string
	Values(row T) []any
	Scan(scan func(dest ...any) error) (T, error)
}

// Cursor is a lazy, finite, non-restartable sequence of query results.
// Callers must call Close exactly once, typically via defer, on every
// exit path including early break.
type Cursor[T any] interface {
	Next(ctx context.Context) bool
	Value() T
	Err() error
	Close() error
}

// Repository is the typed port every table-specific store in this
// module is built against.
type Repository[T any] interface {
	// Insert persists rows as a single batch call. An empty batch is a
	// no-op. Participates in the unit of work found on ctx, if any.
	Insert(ctx context.Context, rows []T) error

	// Query returns a lazy cursor over rows matching spec.
	Query(ctx context.Context, spec Spec) (Cursor[T], error)

	// QueryFirst returns the first row matching spec, or ok=false if
	// none match.
	QueryFirst(ctx context.Context, spec Spec) (row T, ok bool, err error)

	// Exists reports whether any row matches spec.
	Exists(ctx context.Context, spec Spec) (bool, error)

	// BulkUpdate applies set (column -> new value) to every row matching
	// spec and returns the number of rows affected.
	BulkUpdate(ctx context.Context, spec Spec, set map[string]any) (rowsAffected int64, err error)

	// Delete removes every row matching spec and returns the number of
	// rows affected.
	Delete(ctx context.Context, spec Spec) (rowsAffected int64, err error)
}
