package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// UnitOfWork is a scoped transactional context: created, handed to one or
// more repositories which mutate through it, then flushed by the caller
// on every exit path. Modeled as an explicit value threaded through
// context.Context rather than a singleton, per the "cyclic references to
// the unit of work" design note.
type UnitOfWork struct {
	tx *sql.Tx
}

type uowKey struct{}

// Begin starts a new unit of work against db and attaches it to the
// returned context. Callers must Commit or Rollback on every exit path.
func Begin(ctx context.Context, db *sql.DB) (context.Context, *UnitOfWork, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, nil, fmt.Errorf("eventcore: begin unit of work: %w", err)
	}
	uow := &UnitOfWork{tx: tx}
	return context.WithValue(ctx, uowKey{}, uow), uow, nil
}

// Commit flushes the unit of work.
func (u *UnitOfWork) Commit() error {
	if u == nil || u.tx == nil {
		return nil
	}
	return u.tx.Commit()
}

// Rollback discards the unit of work. Safe to call after a successful
// Commit (no-op).
func (u *UnitOfWork) Rollback() error {
	if u == nil || u.tx == nil {
		return nil
	}
	return u.tx.Rollback()
}

// txFromContext returns the ambient transaction on ctx, if any.
func txFromContext(ctx context.Context) *sql.Tx {
	if uow, ok := ctx.Value(uowKey{}).(*UnitOfWork); ok && uow != nil {
		return uow.tx
	}
	return nil
}

// Querier is the subset of *sql.DB / *sql.Tx a store needs to run a
// query; QuerierFor resolves to the ambient unit of work's transaction
// when present, falling back to db otherwise. Exported so table-specific
// stores (event store, outbox, inbox) can issue the occasional raw SQL
// statement a generic port can't express (e.g. INSERT ... RETURNING)
// while still participating in the caller's unit of work.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querierFor(ctx context.Context, db *sql.DB) Querier {
	return QuerierFor(ctx, db)
}

// QuerierFor returns the ambient transaction on ctx if one was started
// with Begin, otherwise db.
func QuerierFor(ctx context.Context, db *sql.DB) Querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
