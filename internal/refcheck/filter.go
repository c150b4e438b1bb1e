// Package refcheck implements the referential filter: given one table's rows
// and the committed state of every table it references, it splits the rows
// into admissible and FK-violating subsets, with a precise reason per
// rejected row.
package refcheck

import (
	"context"
	"fmt"
	"strings"

	"mdload/internal/record"
	"mdload/internal/schema"
	"mdload/internal/storage"
)

// KeySets is the slice of Destination the filter needs: committed key values
// of referenced tables. Implemented by storage backends and by the
// orchestrator's per-run cache.
type KeySets interface {
	KeySet(ctx context.Context, table, column string) (map[string]struct{}, error)
}

// Violation names one failed foreign-key constraint on one row.
type Violation struct {
	Column          string `json:"column"`
	ReferencedTable string `json:"referenced_table"`
	Value           string `json:"value"`
}

func (v Violation) String() string {
	return fmt.Sprintf("column %s: value %q not found in %s", v.Column, v.Value, v.ReferencedTable)
}

// Rejection is one rejected row with every constraint it violated.
type Rejection struct {
	RowIndex   int         `json:"row_index"`
	Violations []Violation `json:"violations"`
}

// Reason renders the rejection as a single human-readable line.
func (r Rejection) Reason() string {
	parts := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		parts = append(parts, v.String())
	}
	return "foreign key violation: " + strings.Join(parts, "; ")
}

// Outcome is the result of filtering one table's rows. Row order is preserved
// in both subsets; Rejections[i] describes Rejected[i].
type Outcome struct {
	Admissible []record.Row
	Rejected   []record.Row
	Rejections []Rejection
}

// Filter splits rows into admissible and FK-violating subsets.
//
// Rules:
//   - Master tables bypass filtering: all rows admissible, always. Masters are
//     guaranteed to load before their dependents by the order invariant, so
//     pre-filtering would wrongly reject rows whose referenced masters simply
//     have not landed yet within this run. Genuine violations surface as a
//     commit-time failure instead.
//   - Tables flagged TolerateFKViolations bypass filtering the same way.
//   - Otherwise, each declared foreign key is checked against the committed
//     key set of the referenced table. Null FK values never reject a row.
//     A row violating several constraints yields one rejection listing all
//     of them.
func Filter(ctx context.Context, spec schema.TableSpec, rows []record.Row, keys KeySets) (Outcome, error) {
	if spec.Class == schema.ClassMaster || spec.TolerateFKViolations || len(spec.ForeignKeys) == 0 {
		return Outcome{Admissible: rows}, nil
	}

	// One committed key set per declared constraint, fetched up front so a
	// lookup failure aborts before any row is classified.
	sets := make([]map[string]struct{}, len(spec.ForeignKeys))
	for i, fk := range spec.ForeignKeys {
		set, err := keys.KeySet(ctx, fk.ReferencedTable, fk.ReferencedColumn)
		if err != nil {
			return Outcome{}, fmt.Errorf("refcheck: key set %s.%s: %w", fk.ReferencedTable, fk.ReferencedColumn, err)
		}
		sets[i] = set
	}

	var out Outcome
	for i, row := range rows {
		var violations []Violation
		for j, fk := range spec.ForeignKeys {
			v, ok := row[fk.Column]
			if !ok || storage.IsNull(v) {
				continue
			}
			nv := storage.NormalizeValue(v)
			if _, found := sets[j][nv]; !found {
				violations = append(violations, Violation{
					Column:          fk.Column,
					ReferencedTable: fk.ReferencedTable,
					Value:           nv,
				})
			}
		}

		if len(violations) == 0 {
			out.Admissible = append(out.Admissible, row)
			continue
		}
		out.Rejected = append(out.Rejected, row)
		out.Rejections = append(out.Rejections, Rejection{RowIndex: i, Violations: violations})
	}
	return out, nil
}
