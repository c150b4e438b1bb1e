package report

import (
	"fmt"
	"regexp"
	"strings"
)

// CategorizeStoreError maps a destination commit error to a ledger category.
// The raw store text is preserved as the rejection reason; this only picks
// the grouping bucket.
func CategorizeStoreError(msg string) Category {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "foreign key"):
		return CategoryMissingReference
	case strings.Contains(m, "null value") || strings.Contains(m, "not null") || strings.Contains(m, "cannot insert the value null"):
		return CategoryMissingRequired
	case strings.Contains(m, "duplicate key") || strings.Contains(m, "unique constraint") || strings.Contains(m, "unique index"):
		return CategoryDuplicateKey
	case strings.Contains(m, "invalid input syntax") || strings.Contains(m, "conversion failed") || strings.Contains(m, "datatype mismatch"):
		return CategoryFormat
	default:
		return CategoryCommitFailure
	}
}

var pgFKDetail = regexp.MustCompile(`Key \(([^)]+)\)=\(([^)]+)\) is not present in table "([^"]+)"`)

// BusinessReason rewrites a store error into the phrasing shown to report
// consumers. Postgres foreign-key detail lines get the column, value, and
// referenced table called out; everything else passes through with a prefix.
func BusinessReason(msg string) string {
	if m := pgFKDetail.FindStringSubmatch(msg); m != nil {
		return fmt.Sprintf("missing reference data: value %q in column %q does not exist in table %s; load the referenced table first", m[2], m[1], m[3])
	}
	return "store rejected write unit: " + msg
}
