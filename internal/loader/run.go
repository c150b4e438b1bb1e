// Package loader walks tables in the declared dependency order, invoking the
// referential filter and the upsert engine per table. A run always visits
// every table exactly once; data-quality problems are recovered at row or
// table scope and reported, never escalated to run failure.
package loader

import (
	"context"
	"fmt"
	"log"
	"time"

	"mdload/internal/metrics"
	"mdload/internal/record"
	"mdload/internal/refcheck"
	"mdload/internal/report"
	"mdload/internal/schema"
	"mdload/internal/storage"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner orchestrates one load run against one destination.
type Runner struct {
	Dest     storage.Destination
	Registry *schema.Registry
	Logger   Logger
	Metrics  metrics.Backend

	// newUUID is a seam for deterministic surrogate keys in tests.
	// When nil, uuid.NewString is used.
	newUUID func() string
}

// NewRunner constructs a Runner with a no-op metrics backend.
func NewRunner(dest storage.Destination, reg *schema.Registry) *Runner {
	return &Runner{Dest: dest, Registry: reg, Metrics: metrics.Noop{}}
}

// Run processes every table of the declared order exactly once, strictly
// sequentially, and returns the finalized run report.
//
// The returned error is non-nil only for fatal conditions (loss of
// destination connectivity); the report is returned in either case and
// reflects everything processed up to the abort point. Tables committed
// before a fatal abort stay committed.
func (r *Runner) Run(ctx context.Context, runID string, batches map[string]*record.Batch) (*report.RunReport, error) {
	logf := r.logger()
	reporter := report.NewReporter(runID)
	cache := newKeyCache(r.Dest)

	runStart := time.Now()
	for _, name := range r.Registry.Order() {
		spec, ok := r.Registry.Spec(name)
		if !ok {
			// Unreachable: the registry validated the order at startup.
			return reporter.Finalize(), fmt.Errorf("loader: no spec for ordered table %q", name)
		}

		batch := batches[name]
		if batch == nil {
			logf("stage=skip table=%s reason=no_batch", name)
			reporter.Record(report.LoadResult{
				Table:  name,
				Status: report.StatusSuccess,
				Notes:  []string{"no batch supplied for this run; table skipped"},
			})
			continue
		}

		res, fatal := r.loadTable(ctx, spec, batch, cache, logf)
		reporter.Record(res)
		if fatal != nil {
			logf("stage=abort table=%s err=%v", name, fatal)
			return reporter.Finalize(), fatal
		}
	}

	logf("stage=run ok tables=%d duration=%s", r.Registry.Len(), durMS(runStart))
	r.Metrics.ObserveDuration("load.run.duration", time.Since(runStart))
	return reporter.Finalize(), nil
}

// loadTable processes one table. It returns the table's LoadResult and, when
// connectivity is lost, a fatal error; every other failure is folded into the
// result.
func (r *Runner) loadTable(ctx context.Context, spec schema.TableSpec, batch *record.Batch, cache *keyCache, logf func(string, ...any)) (report.LoadResult, error) {
	start := time.Now()
	res := report.LoadResult{Table: spec.Name, Read: len(batch.Rows), Status: report.StatusSuccess}

	empty, err := r.Dest.TableEmpty(ctx, spec.Name)
	if err != nil {
		return r.tableFailure(ctx, res, "table inspection", err)
	}
	if empty {
		res.Notes = append(res.Notes, "initial load: destination table was empty")
	}

	outcome, err := refcheck.Filter(ctx, spec, batch.Rows, cache)
	if err != nil {
		return r.tableFailure(ctx, res, "referential filter", err)
	}
	for i, row := range outcome.Rejected {
		rej := outcome.Rejections[i]
		res.Rejections = append(res.Rejections, report.RowRejection{
			Row:      row,
			Reason:   rej.Reason(),
			Category: report.CategoryMissingReference,
		})
	}

	up, err := r.applyUpserts(ctx, spec, outcome.Admissible)
	res.Rejections = append(res.Rejections, up.rejected...)
	res.Notes = append(res.Notes, up.notes...)
	if err != nil {
		// A commit failure rejects the whole write unit with the store's
		// error text; the run continues with the next table.
		fres, fatal := r.tableFailure(ctx, res, "commit", err)
		if fatal != nil {
			return fres, fatal
		}
		cat := report.CategorizeStoreError(err.Error())
		reason := report.BusinessReason(err.Error())
		for _, row := range up.unitRows {
			res.Rejections = append(res.Rejections, report.RowRejection{Row: row, Reason: reason, Category: cat})
		}
		res.Rejected = len(res.Rejections)
		res.Status = report.StatusError
		res.Notes = append(res.Notes, "write unit rejected: "+err.Error())
		r.observeTable(res, start)
		logf("stage=load table=%s commit_failed rejected=%d duration=%s", spec.Name, res.Rejected, durMS(start))
		return res, nil
	}

	cache.invalidate(spec.Name)

	res.Inserted = int(up.result.Inserted)
	res.Updated = int(up.result.Updated)
	res.Rejected = len(res.Rejections)
	if res.Rejected > 0 {
		res.Status = report.StatusPartial
	}
	if res.Read > 0 && res.Inserted == 0 && res.Updated == 0 && res.Rejected == 0 {
		res.Notes = append(res.Notes, "no rows inserted or updated; destination was already in sync with this batch")
	}

	r.observeTable(res, start)
	logf("stage=load table=%s class=%s read=%d inserted=%d updated=%d rejected=%d duration=%s",
		spec.Name, spec.Class, res.Read, res.Inserted, res.Updated, res.Rejected, durMS(start))
	return res, nil
}

// tableFailure decides whether err is a recoverable table error or loss of
// connectivity. Timeouts and constraint violations from the store are table
// errors; only an unreachable destination is fatal.
func (r *Runner) tableFailure(ctx context.Context, res report.LoadResult, op string, err error) (report.LoadResult, error) {
	if pingErr := r.Dest.Ping(ctx); pingErr != nil {
		res.Status = report.StatusError
		res.Notes = append(res.Notes, fmt.Sprintf("aborted during %s: %v", op, err))
		return res, &TransportError{Op: op, Err: err}
	}
	if op != "commit" {
		res.Status = report.StatusError
		res.Notes = append(res.Notes, fmt.Sprintf("%s failed: %v", op, err))
	}
	return res, nil
}

func (r *Runner) observeTable(res report.LoadResult, start time.Time) {
	tag := "table:" + res.Table
	r.Metrics.IncCounter("load.rows.read", float64(res.Read), tag)
	r.Metrics.IncCounter("load.rows.inserted", float64(res.Inserted), tag)
	r.Metrics.IncCounter("load.rows.updated", float64(res.Updated), tag)
	r.Metrics.IncCounter("load.rows.rejected", float64(res.Rejected), tag)
	r.Metrics.ObserveDuration("load.table.duration", time.Since(start), tag)
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func durMS(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
