package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresRepository is the Repository[T] implementation backed by
// database/sql + lib/pq. Table and Mapper are fixed at construction;
// every operation honors the ambient unit of work found on ctx (see
// UnitOfWork) so callers can batch several mutations into one commit.
type PostgresRepository[T any] struct {
	db     *sql.DB
	table  string
	mapper Mapper[T]
}

// NewPostgresRepository builds a repository for table using mapper to
// translate between rows and T.
func NewPostgresRepository[T any](db *sql.DB, table string, mapper Mapper[T]) *PostgresRepository[T] {
	return &PostgresRepository[T]{db: db, table: table, mapper: mapper}
}

func (r *PostgresRepository[T]) Insert(ctx context.Context, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	cols := r.mapper.Columns()
	q := querierFor(ctx, r.db)

	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	n := 1
	for _, row := range rows {
		ph := make([]string, len(cols))
		for i, v := range r.mapper.Values(row) {
			ph[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
			n++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", r.table, strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository[T]) buildSelect(spec Spec) (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.mapper.Columns(), ","), r.table)
	if spec.Where != "" {
		query += " WHERE " + spec.Where
	}
	if spec.OrderBy != "" {
		query += " ORDER BY " + spec.OrderBy
	}
	if spec.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", spec.Limit)
	}
	if spec.ForUpdateSkipLocked {
		query += " FOR UPDATE SKIP LOCKED"
	}
	return query, spec.Args
}

func (r *PostgresRepository[T]) Query(ctx context.Context, spec Spec) (Cursor[T], error) {
	query, args := r.buildSelect(spec)
	q := querierFor(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlCursor[T]{rows: rows, mapper: r.mapper}, nil
}

func (r *PostgresRepository[T]) QueryFirst(ctx context.Context, spec Spec) (T, bool, error) {
	spec.Limit = 1
	cur, err := r.Query(ctx, spec)
	var zero T
	if err != nil {
		return zero, false, err
	}
	defer cur.Close()
	if !cur.Next(ctx) {
		return zero, false, cur.Err()
	}
	return cur.Value(), true, nil
}

func (r *PostgresRepository[T]) Exists(ctx context.Context, spec Spec) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s", r.table)
	if spec.Where != "" {
		query += " WHERE " + spec.Where
	}
	query += ")"
	q := querierFor(ctx, r.db)
	var exists bool
	if err := q.QueryRowContext(ctx, query, spec.Args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepository[T]) BulkUpdate(ctx context.Context, spec Spec, set map[string]any) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("eventcore: bulk update requires at least one column")
	}
	q := querierFor(ctx, r.db)

	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}

	args := append([]any{}, spec.Args...)
	n := len(args) + 1
	setClauses := make([]string, 0, len(cols))
	for _, c := range cols {
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", c, n))
		args = append(args, set[c])
		n++
	}

	query := fmt.Sprintf("UPDATE %s SET %s", r.table, strings.Join(setClauses, ","))
	if spec.Where != "" {
		query += " WHERE " + spec.Where
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository[T]) Delete(ctx context.Context, spec Spec) (int64, error) {
	q := querierFor(ctx, r.db)
	query := fmt.Sprintf("DELETE FROM %s", r.table)
	if spec.Where != "" {
		query += " WHERE " + spec.Where
	}
	res, err := q.ExecContext(ctx, query, spec.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// sqlCursor adapts *sql.Rows to Cursor[T].
type sqlCursor[T any] struct {
	rows   *sql.Rows
	mapper Mapper[T]
	cur    T
	err    error
}

func (c *sqlCursor[T]) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	v, err := c.mapper.Scan(c.rows.Scan)
	if err != nil {
		c.err = err
		return false
	}
	c.cur = v
	return true
}

func (c *sqlCursor[T]) Value() T { return c.cur }
func (c *sqlCursor[T]) Err() error { return c.err }
func (c *sqlCursor[T]) Close() error { return c.rows.Close() }
