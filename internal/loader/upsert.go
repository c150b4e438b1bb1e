package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mdload/internal/record"
	"mdload/internal/report"
	"mdload/internal/schema"
	"mdload/internal/storage"
)

// upsertOutcome is the engine-local result of preparing and applying one
// table's admissible rows.
type upsertOutcome struct {
	result   storage.UpsertResult
	rejected []report.RowRejection
	notes    []string

	// unitRows is what was handed to the destination. On a commit failure the
	// orchestrator rejects every one of them with the store's error text.
	unitRows []record.Row
}

// applyUpserts prepares admissible rows for the destination and commits them
// as one unit.
//
// Preparation steps, in order:
//  1. Business-key validation. A row missing any key component is rejected
//     with reason "missing key", unless the table declares a surrogate for
//     that component; then a value is generated and written onto the row.
//     A nil row (a null entry in the batch's rows array) is rejected as
//     malformed before any key handling.
//  2. Key canonicalization. Key values are rewritten to their canonical form
//     (storage.NormalizeValue) so the destination's key match applies the
//     declared type coercion: numeric normalization, date parsing, boolean
//     spellings, canonical structured serialization.
//  3. Business-key dedupe, keep-last, so one unit never touches the same key
//     twice.
//
// Rows are cloned before any mutation: generated surrogates and canonical key
// values land on the copies handed to the destination, never on the caller's
// batch.
//
// A destination error rolls back the whole unit; the caller decides whether
// it is a per-table commit failure or a fatal transport problem.
func (r *Runner) applyUpserts(ctx context.Context, spec schema.TableSpec, rows []record.Row) (upsertOutcome, error) {
	var out upsertOutcome

	gen, err := r.surrogateFor(ctx, spec)
	if err != nil {
		return out, err
	}

	type keyed struct {
		row record.Row
		key string
	}
	prepared := make([]keyed, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			out.rejected = append(out.rejected, report.RowRejection{
				Row:      record.Row{},
				Reason:   "malformed row: batch contains a null row entry",
				Category: report.CategoryFormat,
			})
			continue
		}
		row = row.Clone()

		var missing []string
		for _, k := range spec.BusinessKey {
			if !storage.IsNull(row[k]) {
				continue
			}
			if gen != nil && spec.Surrogate.Column == k {
				row[k] = gen()
				continue
			}
			missing = append(missing, k)
		}
		if len(missing) > 0 {
			out.rejected = append(out.rejected, report.RowRejection{
				Row:      row,
				Reason:   fmt.Sprintf("missing key: no value for business key column(s) %s", strings.Join(missing, ", ")),
				Category: report.CategoryMissingKey,
			})
			continue
		}

		comps := make([]string, len(spec.BusinessKey))
		for i, k := range spec.BusinessKey {
			nv := storage.NormalizeValue(row[k])
			row[k] = nv
			comps[i] = nv
		}
		prepared = append(prepared, keyed{row: row, key: strings.Join(comps, "\x00")})
	}

	// Keep-last dedupe: the same key appearing twice in one batch would make
	// the write unit touch one destination row twice.
	lastByKey := make(map[string]int, len(prepared))
	for i, p := range prepared {
		lastByKey[p.key] = i
	}
	unit := storage.UpsertUnit{Table: spec.Name, KeyColumns: spec.BusinessKey}
	for i, p := range prepared {
		if lastByKey[p.key] == i {
			unit.Rows = append(unit.Rows, p.row)
		}
	}
	if dropped := len(prepared) - len(unit.Rows); dropped > 0 {
		out.notes = append(out.notes, fmt.Sprintf("deduplicated %d duplicate row(s) on business key %s", dropped, strings.Join(spec.BusinessKey, ",")))
	}

	out.unitRows = unit.Rows
	if len(unit.Rows) == 0 {
		return out, nil
	}

	res, err := r.Dest.Apply(ctx, unit)
	if err != nil {
		return out, err
	}
	out.result = res
	return out, nil
}

// surrogateFor returns a generator for the table's surrogate key column, or
// nil when the table has none. Sequence surrogates continue from the max
// committed value; uuid surrogates are independent of destination state.
func (r *Runner) surrogateFor(ctx context.Context, spec schema.TableSpec) (func() any, error) {
	s := spec.Surrogate
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case "uuid":
		newID := r.newUUID
		if newID == nil {
			newID = uuid.NewString
		}
		return func() any { return newID() }, nil
	case "sequence":
		next, err := r.Dest.MaxSequence(ctx, spec.Name, s.Column)
		if err != nil {
			return nil, fmt.Errorf("loader: surrogate sequence for %s.%s: %w", spec.Name, s.Column, err)
		}
		return func() any {
			next++
			return next
		}, nil
	default:
		// Unreachable: schema.NewRegistry validates surrogate kinds.
		return nil, fmt.Errorf("loader: unsupported surrogate kind %q", s.Kind)
	}
}
