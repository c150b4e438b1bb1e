package mssql

import (
	"reflect"
	"testing"

	"mdload/internal/record"
)

func TestBuildUpdateSQL(t *testing.T) {
	row := record.Row{"id": "7", "name": "widget", "price": 9.5}
	q, args, hasUpdate := buildUpdateSQL("product", []string{"id"}, row)

	wantQ := `UPDATE [product] SET [name] = @p1, [price] = @p2 WHERE [id] = @p3`
	if q != wantQ {
		t.Fatalf("query=%s, want %s", q, wantQ)
	}
	if !hasUpdate {
		t.Fatalf("hasUpdate=false, want true")
	}
	if !reflect.DeepEqual(args, []any{"widget", 9.5, "7"}) {
		t.Fatalf("args=%v", args)
	}
}

// Key-only rows return just the WHERE clause so the caller can probe for a
// match instead of issuing an empty UPDATE.
func TestBuildUpdateSQL_KeyOnlyRow(t *testing.T) {
	q, args, hasUpdate := buildUpdateSQL("product", []string{"id"}, record.Row{"id": "7"})

	if hasUpdate {
		t.Fatalf("hasUpdate=true, want false")
	}
	if q != `[id] = @p1` {
		t.Fatalf("where=%s", q)
	}
	if !reflect.DeepEqual(args, []any{"7"}) {
		t.Fatalf("args=%v", args)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	row := record.Row{"qty": 3, "order_id": "o1", "line_no": "2"}
	q, args := buildInsertSQL("order_line", []string{"order_id", "line_no"}, row)

	wantQ := `INSERT INTO [order_line] ([order_id], [line_no], [qty]) VALUES (@p1, @p2, @p3)`
	if q != wantQ {
		t.Fatalf("query=%s, want %s", q, wantQ)
	}
	if !reflect.DeepEqual(args, []any{"o1", "2", 3}) {
		t.Fatalf("args=%v", args)
	}
}

func TestMssqlIdent(t *testing.T) {
	if got := mssqlIdent("weird]name"); got != "[weird]]name]" {
		t.Fatalf("mssqlIdent=%s", got)
	}
}
