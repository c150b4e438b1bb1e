package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdload/internal/record"
)

func sampleReport() *RunReport {
	return &RunReport{
		RunID:       "20250601T120000Z",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:      StatusPartial,
		Tables: []LoadResult{
			{
				Table: "location", Read: 3, Inserted: 2, Rejected: 1, Status: StatusPartial,
				Rejections: []RowRejection{
					{
						Row:      record.Row{"id": 12.0, "type_id": 3.0, "city": "Aarhus"},
						Reason:   `foreign key violation: column type_id: value "3" not found in type_master`,
						Category: CategoryMissingReference,
					},
				},
			},
			{Table: "type_master", Read: 2, Inserted: 2, Status: StatusSuccess},
		},
		Totals: Totals{Read: 5, Inserted: 4, Rejected: 1, Loaded: 4},
		Ledger: []LedgerEntry{
			{Table: "location", Category: CategoryMissingReference, Count: 1, Sample: "foreign key violation"},
		},
	}
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var got RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "20250601T120000Z", got.RunID)
	assert.Equal(t, StatusPartial, got.Status)
	require.Len(t, got.Tables, 2)
	assert.Equal(t, 1, got.Tables[0].Rejected)
}

// The rejected CSV carries the full row plus reason and category, columns in
// sorted order so repeated runs produce identical files.
func TestWriteRejectedCSV(t *testing.T) {
	rejections := []RowRejection{
		{
			Row:      record.Row{"id": 12.0, "type_id": 3.0, "city": "Aarhus"},
			Reason:   "foreign key violation",
			Category: CategoryMissingReference,
		},
		{
			Row:      record.Row{"id": nil, "city": "Odense"},
			Reason:   "missing key: no value for business key column(s) id",
			Category: CategoryMissingKey,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRejectedCSV(&buf, rejections))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, []string{"city", "id", "type_id", "rejection_reason", "rejection_category"}, recs[0])
	assert.Equal(t, []string{"Aarhus", "12", "3", "foreign key violation", "missing_reference"}, recs[1])
	assert.Equal(t, []string{"Odense", "", "", "missing key: no value for business key column(s) id", "missing_key"}, recs[2])
}

func TestWriteRejectedCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRejectedCSV(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport()

	runDir, err := WriteArtifacts(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, rep.RunID), runDir)

	for _, name := range []string{"report.json", "summary.html", "rejected_location.csv"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoErrorf(t, err, "expected artifact %s", name)
	}

	// Tables without rejections get no CSV.
	_, err = os.Stat(filepath.Join(runDir, "rejected_type_master.csv"))
	assert.True(t, os.IsNotExist(err))
}
