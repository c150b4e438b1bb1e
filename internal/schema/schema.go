// Package schema holds the per-run schema model: table specs, foreign key
// declarations, classification tags, and the declared load order. The registry
// is immutable once built; load-order consistency is checked at construction
// time so that ordering problems surface as configuration errors before any
// row is processed.
package schema

import (
	"fmt"
	"strings"
)

// Classification tags a table by its role in the master-data graph.
// Masters load first and bypass referential pre-filtering entirely.
type Classification string

const (
	ClassMaster        Classification = "master"
	ClassCore          Classification = "core"
	ClassRelationship  Classification = "relationship"
	ClassTransactional Classification = "transactional"
)

// Valid reports whether c is one of the four known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassMaster, ClassCore, ClassRelationship, ClassTransactional:
		return true
	}
	return false
}

// ForeignKeyRef declares that values of Column must exist in
// ReferencedTable.ReferencedColumn.
//
// Invariant: the referenced table must appear earlier in the declared load
// order than the referencing table. A self-reference (table referencing
// itself) is allowed; genuine dangling self-references surface at commit time.
type ForeignKeyRef struct {
	Column           string `yaml:"column" json:"column"`
	ReferencedTable  string `yaml:"referenced_table" json:"referenced_table"`
	ReferencedColumn string `yaml:"referenced_column" json:"referenced_column"`
}

// SurrogateKeySpec declares that a business-key column may be auto-generated
// when absent from an incoming row.
//
// Kinds:
//   - "sequence": max committed value of the column plus a per-run counter
//   - "uuid":     random UUID string
type SurrogateKeySpec struct {
	Column string `yaml:"column" json:"column"`
	Kind   string `yaml:"kind" json:"kind"`
}

// TableSpec describes one destination table for this run. Immutable after the
// registry is built.
type TableSpec struct {
	Name        string          `yaml:"-" json:"name"`
	Columns     []string        `yaml:"columns" json:"columns"`
	BusinessKey []string        `yaml:"business_key" json:"business_key"`
	ForeignKeys []ForeignKeyRef `yaml:"foreign_keys" json:"foreign_keys,omitempty"`
	Class       Classification  `yaml:"-" json:"class"`

	// Surrogate, when set, enables key auto-generation for rows missing the
	// business-key component named by Surrogate.Column.
	Surrogate *SurrogateKeySpec `yaml:"surrogate_key" json:"surrogate_key,omitempty"`

	// TolerateFKViolations marks relationship/transactional tables whose
	// foreign keys are optional cross-references rather than structural
	// requirements. The referential filter admits all of their rows.
	TolerateFKViolations bool `yaml:"tolerate_fk_violations" json:"tolerate_fk_violations,omitempty"`
}

// HasColumn reports whether name is a declared column of the table.
func (t TableSpec) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Registry is the per-run schema model: every table spec plus the declared
// load order (masters, core, relationship, transactional; intra-group order
// preserved).
type Registry struct {
	order []string
	specs map[string]TableSpec
}

// NewRegistry validates specs against the declared order and builds the
// registry. All returned errors are configuration errors: the run must not
// start when any of them occurs.
//
// Checks performed:
//   - every ordered table has a spec and every spec is ordered, exactly once
//   - classifications are valid
//   - business-key and foreign-key columns are declared columns
//   - every ForeignKeyRef targets a table at an earlier order position
//     (self-references excepted)
func NewRegistry(specs map[string]TableSpec, order []string) (*Registry, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("schema: declared load order is empty")
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("schema: load order entry %d is empty", i)
		}
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("schema: table %q appears twice in load order", name)
		}
		pos[name] = i
	}

	for name := range specs {
		if _, ok := pos[name]; !ok {
			return nil, fmt.Errorf("schema: table %q has a spec but is missing from the load order", name)
		}
	}

	for _, name := range order {
		t, ok := specs[name]
		if !ok {
			return nil, fmt.Errorf("schema: load order names table %q but no spec exists for it", name)
		}
		if !t.Class.Valid() {
			return nil, fmt.Errorf("schema: table %q has invalid classification %q", name, t.Class)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("schema: table %q declares no columns", name)
		}
		if len(t.BusinessKey) == 0 {
			return nil, fmt.Errorf("schema: table %q declares no business key", name)
		}
		for _, k := range t.BusinessKey {
			if !t.HasColumn(k) {
				return nil, fmt.Errorf("schema: table %q business key column %q is not a declared column", name, k)
			}
		}
		if s := t.Surrogate; s != nil {
			if s.Kind != "sequence" && s.Kind != "uuid" {
				return nil, fmt.Errorf("schema: table %q surrogate key kind %q is not supported (want sequence or uuid)", name, s.Kind)
			}
			if !keyContains(t.BusinessKey, s.Column) {
				return nil, fmt.Errorf("schema: table %q surrogate column %q is not a business key column", name, s.Column)
			}
		}
		for _, fk := range t.ForeignKeys {
			if !t.HasColumn(fk.Column) {
				return nil, fmt.Errorf("schema: table %q foreign key column %q is not a declared column", name, fk.Column)
			}
			if fk.ReferencedTable == name {
				// Self-references are legal; they cannot be order-checked.
				continue
			}
			refPos, ok := pos[fk.ReferencedTable]
			if !ok {
				return nil, fmt.Errorf("schema: table %q references %q which is not in the load order", name, fk.ReferencedTable)
			}
			if refPos >= pos[name] {
				return nil, fmt.Errorf("schema: table %q references %q which loads at position %d, after position %d; referenced tables must load first",
					name, fk.ReferencedTable, refPos, pos[name])
			}
		}
	}

	ordered := make([]string, len(order))
	copy(ordered, order)
	return &Registry{order: ordered, specs: specs}, nil
}

// Order returns the declared load order. Callers must not mutate it.
func (r *Registry) Order() []string { return r.order }

// Spec returns the table spec for name.
func (r *Registry) Spec(name string) (TableSpec, bool) {
	t, ok := r.specs[name]
	return t, ok
}

// Len returns the number of tables in the registry.
func (r *Registry) Len() int { return len(r.order) }

func keyContains(key []string, col string) bool {
	for _, k := range key {
		if k == col {
			return true
		}
	}
	return false
}
