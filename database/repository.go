package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"twok/models"
)

// Fields maps column names to the values written by an insert or update.
type Fields map[string]any

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ListOpts narrows a List call. Where is a raw SQL predicate using ? placeholders.
type ListOpts struct {
	Where   string
	Args    []any
	OrderBy string
	Skip    int
	Limit   int
}

// Table is the generic per-entity repository. Reads go through selectFrom
// (which may be a join); writes always target name.
type Table[T any] struct {
	db     *sql.DB
	logger *slog.Logger

	label      string // "Board", used in NotFound / Conflict messages
	name       string // table written to
	selectFrom string // FROM clause for reads
	alias      string // column prefix inside selectFrom, e.g. "p."
	columns    string
	idColumn   string
	mainColumn string
	conflict   string
	scan       func(scanner) (*T, error)
}

func (t *Table[T]) col(name string) string { return t.alias + name }

func (t *Table[T]) notFound() error { return models.NotFound(t.label + " not found") }

func (t *Table[T]) conflictErr() error {
	if t.conflict != "" {
		return models.Conflict(t.conflict)
	}
	return models.Conflict(t.label + " already exists")
}

// Get returns the first row matching where, or a NotFound error.
func (t *Table[T]) Get(ctx context.Context, where string, args ...any) (*T, error) {
	query := "SELECT " + t.columns + " FROM " + t.selectFrom + " WHERE " + where + " LIMIT 1"
	entity, err := t.scan(t.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, t.notFound()
		}
		return nil, fmt.Errorf("get %s: %w", t.name, err)
	}
	return entity, nil
}

// GetByID looks a row up by primary key.
func (t *Table[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	return t.Get(ctx, t.col(t.idColumn)+" = ?", id)
}

// GetByMain looks a row up by its natural key.
func (t *Table[T]) GetByMain(ctx context.Context, value any) (*T, error) {
	return t.Get(ctx, t.col(t.mainColumn)+" = ?", value)
}

// List returns every row matching opts. A zero Limit means no limit.
func (t *Table[T]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + t.columns + " FROM " + t.selectFrom)
	if opts.Where != "" {
		sb.WriteString(" WHERE " + opts.Where)
	}
	if opts.OrderBy != "" {
		sb.WriteString(" ORDER BY " + opts.OrderBy)
	}
	args := append([]any{}, opts.Args...)
	if opts.Limit > 0 || opts.Skip > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, opts.Skip)
	}

	rows, err := t.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	defer closeRows(rows, t.logger, "List "+t.name)

	items := []T{}
	for rows.Next() {
		entity, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		items = append(items, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertUnconditional writes a new row without any existence check.
func (t *Table[T]) InsertUnconditional(ctx context.Context, fields Fields) (*T, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("insert %s: no fields", t.name)
	}
	cols, args := splitFields(fields)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)", t.name, strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, t.conflictErr()
		}
		return nil, fmt.Errorf("insert %s: %w", t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return t.GetByID(ctx, id)
}

// InsertIfAbsent inserts fields unless a row already holds the same value in
// the main column, in which case it returns a Conflict error.
func (t *Table[T]) InsertIfAbsent(ctx context.Context, fields Fields) (*T, error) {
	value, ok := fields[t.mainColumn]
	if !ok {
		return nil, fmt.Errorf("insert %s: missing %s", t.name, t.mainColumn)
	}
	return t.InsertIfAbsentWhere(ctx, fields, t.col(t.mainColumn)+" = ?", value)
}

// InsertIfAbsentWhere is InsertIfAbsent with an explicit existence filter.
func (t *Table[T]) InsertIfAbsentWhere(ctx context.Context, fields Fields, where string, args ...any) (*T, error) {
	_, err := t.Get(ctx, where, args...)
	switch {
	case err == nil:
		return nil, t.conflictErr()
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}
	// A concurrent insert that slips past the check still hits the UNIQUE
	// constraint and surfaces as Conflict.
	return t.InsertUnconditional(ctx, fields)
}

// Update applies fields to the row with the given id and returns it re-read.
func (t *Table[T]) Update(ctx context.Context, id int64, fields Fields) (*T, error) {
	if len(fields) == 0 {
		return t.GetByID(ctx, id)
	}
	cols, args := splitFields(fields)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.name, strings.Join(sets, ", "), t.idColumn)

	res, err := t.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, t.conflictErr()
		}
		return nil, fmt.Errorf("update %s: %w", t.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, t.notFound()
	}
	return t.GetByID(ctx, id)
}

// Delete removes the row with the given id.
func (t *Table[T]) Delete(ctx context.Context, id int64) error {
	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.idColumn), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return t.notFound()
	}
	return nil
}

// Count returns the number of rows in the table.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	return t.CountWhere(ctx, "")
}

// CountWhere counts rows matching a predicate over selectFrom.
func (t *Table[T]) CountWhere(ctx context.Context, where string, args ...any) (int, error) {
	query := "SELECT COUNT(*) FROM " + t.selectFrom
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

// splitFields orders columns so generated SQL is stable.
func splitFields(fields Fields) ([]string, []any) {
	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = fields[c]
	}
	return cols, args
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(", ?", n-1)
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
