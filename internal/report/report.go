// Package report aggregates per-table load outcomes into one run report:
// exactly one entry per table, totals computed over the deduplicated
// displayed set, and a rejection ledger grouped by (table, reason category).
package report

import (
	"sort"
	"time"

	"mdload/internal/record"
)

// Status classifies one table's outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Category is the coarse reason grouping used by the rejection ledger.
type Category string

const (
	CategoryMissingReference Category = "missing_reference"
	CategoryMissingKey       Category = "missing_key"
	CategoryMissingRequired  Category = "missing_required"
	CategoryDuplicateKey     Category = "duplicate_key"
	CategoryFormat           Category = "format"
	CategoryCommitFailure    Category = "commit_failure"
)

// RowRejection is one rejected row with its full content and reason,
// consumed by the per-row rejection export.
type RowRejection struct {
	Row      record.Row `json:"row"`
	Reason   string     `json:"reason"`
	Category Category   `json:"category"`
}

// LoadResult is one table's outcome for one run.
type LoadResult struct {
	Table    string   `json:"table"`
	Read     int      `json:"read"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Rejected int      `json:"rejected"`
	Status   Status   `json:"status"`
	Notes    []string `json:"notes,omitempty"`

	Rejections []RowRejection `json:"rejections,omitempty"`
}

// Activity is the total row movement of the result; the dedup rule keeps the
// entry with the greatest activity.
func (r LoadResult) Activity() int {
	return r.Read + r.Inserted + r.Updated + r.Rejected
}

// Totals are computed strictly over the deduplicated, displayed table set,
// never from raw pre-dedup events.
type Totals struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
	Loaded   int `json:"loaded"`
}

// LedgerEntry is one (table, reason category) group of rejections.
type LedgerEntry struct {
	Table    string   `json:"table"`
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Sample   string   `json:"sample,omitempty"`
}

// RunReport is the finalized, uniqueness-enforced run outcome.
type RunReport struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Status      Status        `json:"status"`
	Tables      []LoadResult  `json:"tables"`
	Totals      Totals        `json:"totals"`
	Ledger      []LedgerEntry `json:"ledger,omitempty"`
}

type entry struct {
	result LoadResult
	seq    int
}

// Reporter collects LoadResult events across a run and deduplicates them on
// table name. The pipeline is single-writer, so Reporter is not safe for
// concurrent use.
type Reporter struct {
	runID   string
	entries map[string]entry
	seq     int
	now     func() time.Time
}

// NewReporter creates a reporter for one run.
func NewReporter(runID string) *Reporter {
	return &Reporter{
		runID:   runID,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Record merges one outcome event into the running report.
//
// Dedup rule: for a given table, keep the event with the greatest total
// activity; ties keep the most recent. An early error followed by a later
// success with activity therefore collapses to the success entry.
func (p *Reporter) Record(r LoadResult) {
	p.seq++
	cur, ok := p.entries[r.Table]
	if !ok || r.Activity() >= cur.result.Activity() {
		p.entries[r.Table] = entry{result: r, seq: p.seq}
	}
}

// Finalize produces the rendered report structure.
//
// Entries with zero activity and no error status are suppressed from the
// displayed set; totals and the ledger are computed from what is displayed.
func (p *Reporter) Finalize() *RunReport {
	displayed := make([]LoadResult, 0, len(p.entries))
	for _, e := range p.entries {
		if e.result.Activity() == 0 && e.result.Status != StatusError {
			continue
		}
		displayed = append(displayed, e.result)
	}
	sort.Slice(displayed, func(i, j int) bool { return displayed[i].Table < displayed[j].Table })

	var totals Totals
	ledger := map[string]*LedgerEntry{}
	runStatus := StatusSuccess
	for _, r := range displayed {
		totals.Read += r.Read
		totals.Inserted += r.Inserted
		totals.Updated += r.Updated
		totals.Rejected += r.Rejected

		if r.Status != StatusSuccess {
			runStatus = StatusPartial
		}
		for _, rej := range r.Rejections {
			k := r.Table + "\x00" + string(rej.Category)
			le, ok := ledger[k]
			if !ok {
				le = &LedgerEntry{Table: r.Table, Category: rej.Category, Sample: rej.Reason}
				ledger[k] = le
			}
			le.Count++
		}
	}
	totals.Loaded = totals.Inserted + totals.Updated

	entries := make([]LedgerEntry, 0, len(ledger))
	for _, le := range ledger {
		entries = append(entries, *le)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Table != entries[j].Table {
			return entries[i].Table < entries[j].Table
		}
		return entries[i].Category < entries[j].Category
	})

	return &RunReport{
		RunID:       p.runID,
		GeneratedAt: p.now().UTC(),
		Status:      runStatus,
		Tables:      displayed,
		Totals:      totals,
		Ledger:      entries,
	}
}
