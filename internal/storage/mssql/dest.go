// Package mssql implements storage.Destination for Microsoft SQL Server.
//
// SQL Server has no ON CONFLICT, so the upsert is UPDATE-then-INSERT inside
// the unit transaction: try to rewrite the row matching the business key, and
// insert when no row matched.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"mdload/internal/record"
	"mdload/internal/storage"
)

// Dest implements storage.Destination for SQL Server.
type Dest struct {
	db *sql.DB
}

func init() {
	storage.RegisterDestination("mssql", New)
}

// New opens the SQL Server connection and verifies it is reachable.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
	var count int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT TOP 1 1 AS one FROM %s) t`, mssqlIdent(table))
	if err := d.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return false, fmt.Errorf("mssql: table empty %s: %w", table, err)
	}
	return count == 0, nil
}

func (d *Dest) KeySet(ctx context.Context, table, column string) (map[string]struct{}, error) {
	q := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL`,
		mssqlIdent(column), mssqlIdent(table), mssqlIdent(column))

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mssql: key set %s.%s: %w", table, column, err)
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
	q := fmt.Sprintf(`SELECT MAX(CAST(%s AS BIGINT)) FROM %s`, mssqlIdent(column), mssqlIdent(table))
	if err := d.db.QueryRowContext(ctx, q).Scan(&max); err != nil {
		return 0, fmt.Errorf("mssql: max %s.%s: %w", table, column, err)
	}
	return max.Int64, nil
}

// Apply upserts the unit row by row inside one transaction. The UPDATE runs
// first; RowsAffected decides whether the INSERT is still needed.
func (d *Dest) Apply(ctx context.Context, unit storage.UpsertUnit) (storage.UpsertResult, error) {
	var res storage.UpsertResult

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("mssql: begin %s: %w", unit.Table, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range unit.Rows {
		matched, err := updateRow(ctx, tx, unit, row)
		if err != nil {
			return storage.UpsertResult{}, err
		}
		if matched {
			res.Updated++
			continue
		}

		q, args := buildInsertSQL(unit.Table, unit.KeyColumns, row)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return storage.UpsertResult{}, fmt.Errorf("mssql: insert %s: %w", unit.Table, err)
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("mssql: commit %s: %w", unit.Table, err)
	}
	return res, nil
}

// updateRow attempts the UPDATE leg and reports whether the business key
// matched an existing row. Key-only rows cannot carry a SET clause, so they
// probe with SELECT instead.
func updateRow(ctx context.Context, tx *sql.Tx, unit storage.UpsertUnit, row record.Row) (bool, error) {
	q, args, hasUpdate := buildUpdateSQL(unit.Table, unit.KeyColumns, row)
	if !hasUpdate {
		probe := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, mssqlIdent(unit.Table), q)
		var count int
		if err := tx.QueryRowContext(ctx, probe, args...).Scan(&count); err != nil {
			return false, fmt.Errorf("mssql: key probe %s: %w", unit.Table, err)
		}
		return count > 0, nil
	}

	r, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("mssql: update %s: %w", unit.Table, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mssql: update %s: rows affected: %w", unit.Table, err)
	}
	return n > 0, nil
}

// buildUpdateSQL builds the UPDATE statement for rows carrying non-key
// columns. For key-only rows it returns just the WHERE clause and
// hasUpdate=false so the caller can probe for a match instead.
func buildUpdateSQL(table string, keyColumns []string, row record.Row) (string, []any, bool) {
	nonKey := nonKeyColumns(keyColumns, row)

	var b strings.Builder
	args := make([]any, 0, len(nonKey)+len(keyColumns))
	p := 1

	if len(nonKey) == 0 {
		writeKeyWhere(&b, keyColumns, row, &p, &args)
		return b.String(), args, false
	}

	b.WriteString("UPDATE ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" SET ")
	for i, c := range nonKey {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = @p%d", mssqlIdent(c), p)
		args = append(args, row[c])
		p++
	}
	b.WriteString(" WHERE ")
	writeKeyWhere(&b, keyColumns, row, &p, &args)
	return b.String(), args, true
}

func buildInsertSQL(table string, keyColumns []string, row record.Row) (string, []any) {
	cols := append([]string{}, keyColumns...)
	cols = append(cols, nonKeyColumns(keyColumns, row)...)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
		args = append(args, row[c])
	}
	b.WriteString(")")
	return b.String(), args
}

func writeKeyWhere(b *strings.Builder, keyColumns []string, row record.Row, p *int, args *[]any) {
	for i, k := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(b, "%s = @p%d", mssqlIdent(k), *p)
		*args = append(*args, row[k])
		*p++
	}
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

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
