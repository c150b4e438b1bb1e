package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderDoc(t *testing.T, rep *RunReport) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, rep))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestRenderHTML_Summary(t *testing.T) {
	doc := renderDoc(t, sampleReport())

	status := strings.TrimSpace(doc.Find("#status span").Text())
	assert.Equal(t, "partial", status)

	assert.Equal(t, "5", strings.TrimSpace(doc.Find("#total-read").Text()))
	assert.Equal(t, "4", strings.TrimSpace(doc.Find("#total-loaded").Text()))
	assert.Equal(t, "4", strings.TrimSpace(doc.Find("#total-inserted").Text()))
	assert.Equal(t, "0", strings.TrimSpace(doc.Find("#total-updated").Text()))
	assert.Equal(t, "1", strings.TrimSpace(doc.Find("#total-rejected").Text()))

	assert.Contains(t, doc.Find("title").Text(), "20250601T120000Z")
}

// One row per table, in report order, with per-table status rendered.
func TestRenderHTML_TableRows(t *testing.T) {
	doc := renderDoc(t, sampleReport())

	rows := doc.Find("table#tables tbody tr")
	require.Equal(t, 2, rows.Length())

	first := rows.First().Find("td")
	assert.Equal(t, "location", strings.TrimSpace(first.Eq(0).Text()))
	assert.Equal(t, "3", strings.TrimSpace(first.Eq(1).Text()))
	assert.Equal(t, "partial", strings.TrimSpace(first.Eq(5).Text()))
}

func TestRenderHTML_LedgerSection(t *testing.T) {
	doc := renderDoc(t, sampleReport())

	ledger := doc.Find("table#ledger tbody tr")
	require.Equal(t, 1, ledger.Length())
	cells := ledger.First().Find("td")
	assert.Equal(t, "location", strings.TrimSpace(cells.Eq(0).Text()))
	assert.Equal(t, "missing_reference", strings.TrimSpace(cells.Eq(1).Text()))
	assert.Equal(t, "1", strings.TrimSpace(cells.Eq(2).Text()))
}

// With no rejections anywhere, the ledger section is omitted entirely.
func TestRenderHTML_NoLedgerWhenClean(t *testing.T) {
	rep := sampleReport()
	rep.Ledger = nil
	doc := renderDoc(t, rep)

	assert.Zero(t, doc.Find("table#ledger").Length())
}
