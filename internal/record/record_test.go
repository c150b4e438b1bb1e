package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "product.json", `{"table":"product","rows":[{"sku":"A-1","price":9.5},{"sku":"A-2"}]}`)

	b, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() err=%v", err)
	}
	if b.Table != "product" {
		t.Fatalf("Table=%q, want product", b.Table)
	}
	if len(b.Rows) != 2 {
		t.Fatalf("Rows=%d, want 2", len(b.Rows))
	}
	if b.Rows[0]["sku"] != "A-1" || b.Rows[0]["price"] != 9.5 {
		t.Fatalf("row 0 = %v", b.Rows[0])
	}
}

// TestLoadFile_TableDefaultsToFilename verifies the file stem is used when the
// batch does not name its table.
func TestLoadFile_TableDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "warehouse.json", `{"rows":[{"id":1}]}`)

	b, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() err=%v", err)
	}
	if b.Table != "warehouse" {
		t.Fatalf("Table=%q, want warehouse", b.Table)
	}
}

func TestLoadFile_BadJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", `{"rows": [`)

	if _, err := LoadFile(path); err == nil {
		t.Fatalf("LoadFile() err=nil, want parse error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01_type_master.json", `{"table":"type_master","rows":[{"id":1}]}`)
	writeFile(t, dir, "02_location.json", `{"table":"location","rows":[{"id":10}]}`)
	writeFile(t, dir, "notes.txt", `ignored`)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() err=%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadDir()=%d batches, want 2", len(got))
	}
	if got["type_master"] == nil || got["location"] == nil {
		t.Fatalf("LoadDir missing expected tables: %v", got)
	}
}

func TestLoadDir_DuplicateTable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"table":"product","rows":[]}`)
	writeFile(t, dir, "b.json", `{"table":"product","rows":[]}`)

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatalf("LoadDir() err=nil, want duplicate error")
	}
	if !strings.Contains(err.Error(), "duplicate") || !strings.Contains(err.Error(), "product") {
		t.Fatalf("error=%q, want duplicate mention of product", err)
	}
}

func TestRowClone(t *testing.T) {
	r := Row{"id": 1, "name": "x"}
	c := r.Clone()
	c["name"] = "y"
	if r["name"] != "x" {
		t.Fatalf("Clone aliases original row")
	}
}
