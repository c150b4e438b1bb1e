package report

import (
	"html/template"
	"io"
)

// RenderHTML writes the human-readable summary for one run. The structure is
// consumed by business users: overall totals, one row per table, and a
// rejection section explaining each (table, category) ledger group.
func RenderHTML(w io.Writer, rep *RunReport) error {
	return summaryTmpl.Execute(w, rep)
}

var summaryTmpl = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Data Load Report - {{.RunID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.header { background-color: #f0f0f0; padding: 15px; border-radius: 5px; }
.success { color: green; font-weight: bold; }
.partial { color: orange; font-weight: bold; }
.error { color: red; font-weight: bold; }
table { border-collapse: collapse; width: 100%; margin-top: 20px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
</style>
</head>
<body>
<div class="header">
<h1>Data Load Report</h1>
<p><strong>Run ID:</strong> {{.RunID}}</p>
<p><strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
<h2 id="status">Overall Status: <span class="{{.Status}}">{{.Status}}</span></h2>
</div>
<div id="totals">
<p><strong>Records Read:</strong> <span id="total-read">{{.Totals.Read}}</span></p>
<p><strong>Successfully Loaded:</strong> <span id="total-loaded">{{.Totals.Loaded}}</span></p>
<p><strong>New Records:</strong> <span id="total-inserted">{{.Totals.Inserted}}</span></p>
<p><strong>Updated Records:</strong> <span id="total-updated">{{.Totals.Updated}}</span></p>
<p><strong>Rejected Records:</strong> <span id="total-rejected">{{.Totals.Rejected}}</span></p>
</div>
<h2>Table-by-Table Results</h2>
<table id="tables">
<thead>
<tr><th>Table</th><th>Read</th><th>Inserted</th><th>Updated</th><th>Rejected</th><th>Status</th><th>Notes</th></tr>
</thead>
<tbody>
{{range .Tables}}<tr>
<td>{{.Table}}</td><td>{{.Read}}</td><td>{{.Inserted}}</td><td>{{.Updated}}</td><td>{{.Rejected}}</td>
<td class="{{.Status}}">{{.Status}}</td>
<td>{{range $i, $n := .Notes}}{{if $i}}; {{end}}{{$n}}{{end}}</td>
</tr>
{{end}}</tbody>
</table>
{{if .Ledger}}
<h2>Why Were Records Rejected?</h2>
<table id="ledger">
<thead>
<tr><th>Table</th><th>Reason Category</th><th>Rows</th><th>Example</th></tr>
</thead>
<tbody>
{{range .Ledger}}<tr>
<td>{{.Table}}</td><td>{{.Category}}</td><td>{{.Count}}</td><td>{{.Sample}}</td>
</tr>
{{end}}</tbody>
</table>
{{end}}
</body>
</html>
`))
