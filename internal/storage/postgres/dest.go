// Package postgres implements storage.Destination on top of pgx.
//
// Upserts use INSERT ... ON CONFLICT with RETURNING (xmax = 0) so insert and
// update counts come straight from the server, mirroring how the destination
// itself decides whether a business key matched.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mdload/internal/record"
	"mdload/internal/storage"
)

// Dest implements storage.Destination for Postgres.
type Dest struct {
	pool *pgxpool.Pool
}

func init() {
	storage.RegisterDestination("postgres", New)
}

// New creates a Postgres-backed destination and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Dest{pool: pool}, nil
}

func (d *Dest) Close() { d.pool.Close() }

func (d *Dest) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func (d *Dest) TableEmpty(ctx context.Context, table string) (bool, error) {
	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, pgIdent(table))
	if err := d.pool.QueryRow(ctx, q).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: table empty %s: %w", table, err)
	}
	return !exists, nil
}

func (d *Dest) KeySet(ctx context.Context, table, column string) (map[string]struct{}, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL`,
		pgIdent(column), pgIdent(table), pgIdent(column))

	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: key set %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[storage.NormalizeValue(v)] = struct{}{}
	}
	return out, rows.Err()
}

func (d *Dest) MaxSequence(ctx context.Context, table, column string) (int64, error) {
	var max int64
	q := fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM %s`, pgIdent(column), pgIdent(table))
	if err := d.pool.QueryRow(ctx, q).Scan(&max); err != nil {
		return 0, fmt.Errorf("postgres: max %s.%s: %w", table, column, err)
	}
	return max, nil
}

// Apply upserts the unit row by row inside one transaction, released on every
// exit path. Each row updates only the columns it actually carries.
func (d *Dest) Apply(ctx context.Context, unit storage.UpsertUnit) (storage.UpsertResult, error) {
	var res storage.UpsertResult

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("postgres: begin %s: %w", unit.Table, err)
	}
	defer tx.Rollback(ctx)

	for _, row := range unit.Rows {
		q, args, hasUpdate := buildRowUpsertSQL(unit.Table, unit.KeyColumns, row)

		var inserted bool
		err := tx.QueryRow(ctx, q, args...).Scan(&inserted)
		switch {
		case err == nil:
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		case errors.Is(err, pgx.ErrNoRows) && !hasUpdate:
			// Key-only row hit ON CONFLICT DO NOTHING: the key matched and
			// there is nothing to rewrite, which counts as a match.
			res.Updated++
		default:
			return storage.UpsertResult{}, fmt.Errorf("postgres: upsert %s: %w", unit.Table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("postgres: commit %s: %w", unit.Table, err)
	}
	return res, nil
}

// buildRowUpsertSQL constructs the per-row upsert statement and its args.
//
// It is pure and deterministic (key columns in declared order, remaining
// columns sorted) so placeholder numbering and ON CONFLICT behavior are unit
// testable without a database.
//
// hasUpdate reports whether the statement carries a DO UPDATE clause; rows
// with no non-key columns fall back to DO NOTHING.
func buildRowUpsertSQL(table string, keyColumns []string, row record.Row) (string, []any, bool) {
	cols, nonKey := orderedColumns(keyColumns, row)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
		args = append(args, row[c])
	}
	b.WriteString(") ON CONFLICT (")
	for i, k := range keyColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(k))
	}
	b.WriteString(")")

	if len(nonKey) == 0 {
		b.WriteString(" DO NOTHING RETURNING true")
		return b.String(), args, false
	}

	b.WriteString(" DO UPDATE SET ")
	for i, c := range nonKey {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" RETURNING (xmax = 0)")
	return b.String(), args, true
}

// orderedColumns returns the row's columns with key columns first (declared
// order), then the remaining columns sorted, plus the non-key subset.
func orderedColumns(keyColumns []string, row record.Row) (cols, nonKey []string) {
	isKey := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		isKey[k] = true
	}

	cols = append(cols, keyColumns...)
	for c := range row {
		if !isKey[c] {
			nonKey = append(nonKey, c)
		}
	}
	sort.Strings(nonKey)
	cols = append(cols, nonKey...)
	return cols, nonKey
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
