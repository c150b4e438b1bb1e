package refcheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mdload/internal/record"
	"mdload/internal/schema"
)

// fakeKeySets serves committed key sets from a map keyed "table.column".
type fakeKeySets struct {
	sets map[string]map[string]struct{}
	err  error
}

func (f *fakeKeySets) KeySet(ctx context.Context, table, column string) (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sets[table+"."+column], nil
}

func keySet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func locationSpec() schema.TableSpec {
	return schema.TableSpec{
		Name:        "location",
		Class:       schema.ClassCore,
		Columns:     []string{"id", "type_id"},
		BusinessKey: []string{"id"},
		ForeignKeys: []schema.ForeignKeyRef{
			{Column: "type_id", ReferencedTable: "type_master", ReferencedColumn: "id"},
		},
	}
}

// A batch referencing type ids {1,2,3} against committed masters {1,2} must
// admit the first two rows and reject the third with a reason naming the
// column, the missing value, and the referenced table.
func TestFilter_RejectsDanglingReference(t *testing.T) {
	keys := &fakeKeySets{sets: map[string]map[string]struct{}{
		"type_master.id": keySet("1", "2"),
	}}
	rows := []record.Row{
		{"id": 10.0, "type_id": 1.0},
		{"id": 11.0, "type_id": 2.0},
		{"id": 12.0, "type_id": 3.0},
	}

	out, err := Filter(context.Background(), locationSpec(), rows, keys)
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Admissible) != 2 {
		t.Fatalf("admissible=%d, want 2", len(out.Admissible))
	}
	if out.Admissible[0]["id"] != 10.0 || out.Admissible[1]["id"] != 11.0 {
		t.Fatalf("admissible order not preserved: %v", out.Admissible)
	}
	if len(out.Rejected) != 1 || out.Rejected[0]["id"] != 12.0 {
		t.Fatalf("rejected=%v, want the type_id=3 row", out.Rejected)
	}

	rej := out.Rejections[0]
	if rej.RowIndex != 2 {
		t.Fatalf("RowIndex=%d, want 2", rej.RowIndex)
	}
	reason := rej.Reason()
	for _, want := range []string{"foreign key violation", "type_id", `"3"`, "type_master"} {
		if !strings.Contains(reason, want) {
			t.Fatalf("reason=%q missing %q", reason, want)
		}
	}
}

// Masters bypass filtering entirely; their own dangling references (if any)
// are a commit-time concern.
func TestFilter_MasterBypass(t *testing.T) {
	spec := schema.TableSpec{
		Name:        "category",
		Class:       schema.ClassMaster,
		Columns:     []string{"id", "parent_id"},
		BusinessKey: []string{"id"},
		ForeignKeys: []schema.ForeignKeyRef{
			{Column: "parent_id", ReferencedTable: "category", ReferencedColumn: "id"},
		},
	}
	rows := []record.Row{
		{"id": 1.0, "parent_id": nil},
		{"id": 2.0, "parent_id": 1.0},
		{"id": 3.0, "parent_id": 99.0},
	}

	// No key sets supplied: the bypass must not consult them at all.
	out, err := Filter(context.Background(), spec, rows, &fakeKeySets{err: errors.New("must not be called")})
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Admissible) != 3 || len(out.Rejected) != 0 {
		t.Fatalf("master bypass: admissible=%d rejected=%d", len(out.Admissible), len(out.Rejected))
	}
}

func TestFilter_ToleranceBypass(t *testing.T) {
	spec := locationSpec()
	spec.TolerateFKViolations = true
	rows := []record.Row{{"id": 1.0, "type_id": 99.0}}

	out, err := Filter(context.Background(), spec, rows, &fakeKeySets{err: errors.New("must not be called")})
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Admissible) != 1 {
		t.Fatalf("tolerance bypass: admissible=%d, want 1", len(out.Admissible))
	}
}

// Null FK values are not references; they never reject a row.
func TestFilter_NullReferenceAdmitted(t *testing.T) {
	keys := &fakeKeySets{sets: map[string]map[string]struct{}{
		"type_master.id": keySet("1"),
	}}
	rows := []record.Row{
		{"id": 1.0, "type_id": nil},
		{"id": 2.0, "type_id": ""},
		{"id": 3.0},
	}

	out, err := Filter(context.Background(), locationSpec(), rows, keys)
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Admissible) != 3 || len(out.Rejected) != 0 {
		t.Fatalf("admissible=%d rejected=%d, want 3/0", len(out.Admissible), len(out.Rejected))
	}
}

// Equivalent representations must match: a float 1.0 in the batch matches a
// committed key normalized from integer 1.
func TestFilter_NormalizedComparison(t *testing.T) {
	keys := &fakeKeySets{sets: map[string]map[string]struct{}{
		"type_master.id": keySet("1"),
	}}
	rows := []record.Row{
		{"id": 1.0, "type_id": "1.0"},
		{"id": 2.0, "type_id": " 1 "},
	}

	out, err := Filter(context.Background(), locationSpec(), rows, keys)
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Rejected) != 0 {
		t.Fatalf("rejected=%v, want none", out.Rejections)
	}
}

// A row breaking several constraints yields one rejection listing all of them.
func TestFilter_MultipleViolationsOneRejection(t *testing.T) {
	spec := schema.TableSpec{
		Name:        "shipment",
		Class:       schema.ClassTransactional,
		Columns:     []string{"id", "origin_id", "carrier_id"},
		BusinessKey: []string{"id"},
		ForeignKeys: []schema.ForeignKeyRef{
			{Column: "origin_id", ReferencedTable: "location", ReferencedColumn: "id"},
			{Column: "carrier_id", ReferencedTable: "carrier", ReferencedColumn: "id"},
		},
	}
	keys := &fakeKeySets{sets: map[string]map[string]struct{}{
		"location.id": keySet("10"),
		"carrier.id":  keySet("c1"),
	}}
	rows := []record.Row{{"id": 1.0, "origin_id": 99.0, "carrier_id": "c9"}}

	out, err := Filter(context.Background(), spec, rows, keys)
	if err != nil {
		t.Fatalf("Filter() err=%v", err)
	}
	if len(out.Rejections) != 1 {
		t.Fatalf("rejections=%d, want 1", len(out.Rejections))
	}
	if got := len(out.Rejections[0].Violations); got != 2 {
		t.Fatalf("violations=%d, want 2", got)
	}
	reason := out.Rejections[0].Reason()
	if !strings.Contains(reason, "origin_id") || !strings.Contains(reason, "carrier_id") {
		t.Fatalf("reason=%q should name both columns", reason)
	}
}

// A key-set lookup failure aborts filtering; no row may be misclassified
// against incomplete committed state.
func TestFilter_KeySetErrorAborts(t *testing.T) {
	keys := &fakeKeySets{err: errors.New("connection reset")}
	rows := []record.Row{{"id": 1.0, "type_id": 1.0}}

	_, err := Filter(context.Background(), locationSpec(), rows, keys)
	if err == nil {
		t.Fatalf("Filter() err=nil, want lookup error")
	}
	if !strings.Contains(err.Error(), "type_master") {
		t.Fatalf("error=%q should name the referenced table", err)
	}
}
