// Package record defines the row and batch types flowing through the load
// pipeline. Batches arrive from the external normalizer already column-renamed
// and type-coerced; this package only carries them, it never reshapes them.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Row is one record, column name to value. Values come from JSON decoding:
// string, float64, bool, nil, or nested map/slice for structured columns.
type Row map[string]any

// Clone returns a shallow copy of the row. Nested values are shared; callers
// that rewrite a value must replace it, not mutate it in place.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is one table's rows for one load attempt. Row order is significant
// and must be preserved through filtering.
type Batch struct {
	Table string `json:"table"`
	Rows  []Row  `json:"rows"`
}

// LoadFile reads a single normalized batch file.
//
// The file is JSON of the form {"table": "...", "rows": [{...}, ...]}. When
// the "table" field is empty, the file name (without extension) is used.
func LoadFile(path string) (*Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("record: read batch %s: %w", path, err)
	}

	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("record: parse batch %s: %w", path, err)
	}
	if b.Table == "" {
		base := filepath.Base(path)
		b.Table = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &b, nil
}

// LoadDir reads every *.json batch file in dir, keyed by table name.
//
// Files are read in lexical order so duplicate table names fail
// deterministically.
func LoadDir(dir string) (map[string]*Batch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("record: read batch dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make(map[string]*Batch, len(names))
	for _, name := range names {
		b, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := out[b.Table]; dup {
			return nil, fmt.Errorf("record: duplicate batch for table %q (file %s)", b.Table, name)
		}
		out[b.Table] = b
	}
	return out, nil
}
