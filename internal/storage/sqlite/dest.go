// Package sqlite implements storage.Destination for SQLite.
//
// SQLite has no xmax-style "was this an insert" signal, so the upsert is a
// select-then-write inside the unit transaction: probe the business key,
// then UPDATE the matched row's present columns or INSERT a new row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"mdload/internal/record"
	"mdload/internal/storage"
)

// Dest implements storage.Destination for SQLite.
type Dest struct {
	db *sql.DB
}

func init() {
	storage.RegisterDestination("sqlite", New)
}

// New opens the SQLite database and verifies it is reachable.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Dest{db: db}, nil
}

func (d *Dest) Close() { _ = d.db.Close() }

func (d *Dest) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *Dest) TableEmpty(ctx context.Context, table string) (bool, error) {
	var one int
	q := fmt.Sprintf(`SELECT 1 FROM %s LIMIT 1`, sqlIdent(table))
	err := d.db.QueryRowContext(ctx, q).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: table empty %s: %w", table, err)
	}
	return false, nil
}

func (d *Dest) KeySet(ctx context.Context, table, column string) (map[string]struct{}, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL`,
		sqlIdent(column), sqlIdent(table), sqlIdent(column))

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: key set %s.%s: %w", table, column, err)
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
	var max sql.NullInt64
	q := fmt.Sprintf(`SELECT MAX(CAST(%s AS INTEGER)) FROM %s`, sqlIdent(column), sqlIdent(table))
	if err := d.db.QueryRowContext(ctx, q).Scan(&max); err != nil {
		return 0, fmt.Errorf("sqlite: max %s.%s: %w", table, column, err)
	}
	return max.Int64, nil
}

// Apply upserts the unit row by row inside one transaction.
func (d *Dest) Apply(ctx context.Context, unit storage.UpsertUnit) (storage.UpsertResult, error) {
	var res storage.UpsertResult

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("sqlite: begin %s: %w", unit.Table, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range unit.Rows {
		matched, err := keyExists(ctx, tx, unit, row)
		if err != nil {
			return storage.UpsertResult{}, err
		}

		if matched {
			q, args := buildUpdateSQL(unit.Table, unit.KeyColumns, row)
			if q != "" {
				if _, err := tx.ExecContext(ctx, q, args...); err != nil {
					return storage.UpsertResult{}, fmt.Errorf("sqlite: update %s: %w", unit.Table, err)
				}
			}
			res.Updated++
			continue
		}

		q, args := buildInsertSQL(unit.Table, unit.KeyColumns, row)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return storage.UpsertResult{}, fmt.Errorf("sqlite: insert %s: %w", unit.Table, err)
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("sqlite: commit %s: %w", unit.Table, err)
	}
	return res, nil
}

func keyExists(ctx context.Context, tx *sql.Tx, unit storage.UpsertUnit, row record.Row) (bool, error) {
	where, args := buildKeyWhere(unit.KeyColumns, row)
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE %s LIMIT 1`, sqlIdent(unit.Table), where)

	var one int
	err := tx.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: key probe %s: %w", unit.Table, err)
	}
	return true, nil
}

// buildUpdateSQL updates only the non-key columns present in the row. Returns
// an empty query for key-only rows, which are a no-op on match.
func buildUpdateSQL(table string, keyColumns []string, row record.Row) (string, []any) {
	nonKey := nonKeyColumns(keyColumns, row)
	if len(nonKey) == 0 {
		return "", nil
	}

	setParts := make([]string, 0, len(nonKey))
	args := make([]any, 0, len(nonKey)+len(keyColumns))
	for _, c := range nonKey {
		setParts = append(setParts, sqlIdent(c)+" = ?")
		args = append(args, row[c])
	}

	where, whereArgs := buildKeyWhere(keyColumns, row)
	args = append(args, whereArgs...)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
		sqlIdent(table), strings.Join(setParts, ", "), where)
	return q, args
}

func buildInsertSQL(table string, keyColumns []string, row record.Row) (string, []any) {
	cols := append([]string{}, keyColumns...)
	cols = append(cols, nonKeyColumns(keyColumns, row)...)

	colList := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		colList = append(colList, sqlIdent(c))
		args = append(args, row[c])
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		sqlIdent(table), strings.Join(colList, ", "), ph)
	return q, args
}

func buildKeyWhere(keyColumns []string, row record.Row) (string, []any) {
	parts := make([]string, 0, len(keyColumns))
	args := make([]any, 0, len(keyColumns))
	for _, k := range keyColumns {
		parts = append(parts, sqlIdent(k)+" = ?")
		args = append(args, row[k])
	}
	return strings.Join(parts, " AND "), args
}

func nonKeyColumns(keyColumns []string, row record.Row) []string {
	isKey := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		isKey[k] = true
	}
	var out []string
	for c := range row {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
