package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"mdload/internal/storage"
)

// WriteJSON writes the finalized report as indented JSON.
func WriteJSON(w io.Writer, rep *RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteRejectedCSV writes one table's rejected rows: full row content plus
// rejection_reason and rejection_category columns. Column order is the sorted
// union of the rows' columns so the file is deterministic.
func WriteRejectedCSV(w io.Writer, rejections []RowRejection) error {
	if len(rejections) == 0 {
		return nil
	}

	colSet := map[string]struct{}{}
	for _, rej := range rejections {
		for c := range rej.Row {
			colSet[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	cw := csv.NewWriter(w)
	header := append(append([]string{}, cols...), "rejection_reason", "rejection_category")
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(cols)+2)
	for _, rej := range rejections {
		for i, c := range cols {
			v, ok := rej.Row[c]
			if !ok || v == nil {
				rec[i] = ""
				continue
			}
			rec[i] = storage.NormalizeValue(v)
		}
		rec[len(cols)] = rej.Reason
		rec[len(cols)+1] = string(rej.Category)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteArtifacts writes the run's report files under dir/<run_id>/:
// report.json, summary.html, and rejected_<table>.csv per table with
// rejections.
func WriteArtifacts(dir string, rep *RunReport) (string, error) {
	runDir := filepath.Join(dir, rep.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("report: create run dir: %w", err)
	}

	jf, err := os.Create(filepath.Join(runDir, "report.json"))
	if err != nil {
		return "", err
	}
	if err := WriteJSON(jf, rep); err != nil {
		jf.Close()
		return "", err
	}
	if err := jf.Close(); err != nil {
		return "", err
	}

	hf, err := os.Create(filepath.Join(runDir, "summary.html"))
	if err != nil {
		return "", err
	}
	if err := RenderHTML(hf, rep); err != nil {
		hf.Close()
		return "", err
	}
	if err := hf.Close(); err != nil {
		return "", err
	}

	for _, t := range rep.Tables {
		if len(t.Rejections) == 0 {
			continue
		}
		cf, err := os.Create(filepath.Join(runDir, "rejected_"+t.Table+".csv"))
		if err != nil {
			return "", err
		}
		if err := WriteRejectedCSV(cf, t.Rejections); err != nil {
			cf.Close()
			return "", err
		}
		if err := cf.Close(); err != nil {
			return "", err
		}
	}
	return runDir, nil
}
