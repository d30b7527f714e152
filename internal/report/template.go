package report

// ReportTemplate is the HTML template for a run report.
// It is embedded as a Go constant so the binary has no external files.
const ReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --green: #16a34a;
    --red: #dc2626;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 900px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { font-size: 1.5rem; margin-bottom: 4px; color: var(--accent); }
  h2 { font-size: 1.2rem; margin: 24px 0 12px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }

  .header {
    display: flex;
    justify-content: space-between;
    align-items: flex-start;
    border-bottom: 3px solid var(--accent);
    padding-bottom: 12px;
    margin-bottom: 16px;
  }
  .header-right { text-align: right; }

  .stat-grid {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(180px, 1fr));
    gap: 8px;
    margin: 10px 0 16px;
  }
  .stat-card {
    background: var(--section-bg);
    padding: 8px 12px;
    border-radius: 6px;
  }
  .stat-card .label { color: var(--muted); font-size: 0.75rem; text-transform: uppercase; }
  .stat-card .value { font-weight: 600; }

  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.9rem; }
  th { background: var(--section-bg); text-align: left; padding: 8px; font-weight: 600; }
  td { padding: 8px; border-bottom: 1px solid var(--border); }
  .positive { color: var(--green); }
  .negative { color: var(--red); }

  .chart-container { margin: 12px 0; overflow-x: auto; }
  .chart-container svg { max-width: 100%; height: auto; }

  .warnings { background: #fefce8; border-left: 5px solid #eab308; padding: 10px 14px; font-size: 0.85rem; }

  .footer {
    margin-top: 30px;
    padding-top: 12px;
    border-top: 2px solid var(--border);
    font-size: 0.8rem;
    color: var(--muted);
    text-align: center;
  }

  @media print {
    body { max-width: 100%; padding: 10px; }
    .chart-container { page-break-inside: avoid; }
  }
</style>
</head>
<body>

<!-- ═══════ HEADER ═══════ -->
<div class="header">
  <div>
    <h1>{{.Title}}</h1>
    <p class="muted">{{.Model}} · {{.Strategy}} · {{.Period}}</p>
  </div>
  <div class="header-right">
    <p class="muted">{{.GeneratedAt}}</p>
    <p class="muted">Run {{.RunID}}</p>
  </div>
</div>

<!-- ═══════ FIT QUALITY ═══════ -->
<div class="stat-grid">
  <div class="stat-card"><div class="label">Days</div><div class="value">{{.Days}}</div></div>
  <div class="stat-card"><div class="label">Mean R²</div><div class="value">{{.MeanR2}}</div></div>
  <div class="stat-card"><div class="label">Elapsed</div><div class="value">{{.Elapsed}}</div></div>
</div>

<h2>Efficiency Summary</h2>
<table>
  <tr><th>Tier</th><th>Days</th><th>Share</th></tr>
  {{range .Tiers}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{.Percent}}</td></tr>
  {{end}}
</table>

<!-- ═══════ BUTTERFLY ═══════ -->
{{with .Fly}}
<h2>Butterfly Spread (2s5s10s)</h2>
<table>
  <tr><td>Regression coefficients</td><td>{{.Coefficients}}</td></tr>
  <tr><td>Hedge weights</td><td>{{.Weights}}</td></tr>
  <tr><td>Hedge R²</td><td>{{.HedgeR2}}</td></tr>
  <tr><td>Mean reversion spread</td><td>{{.Mean}}</td></tr>
  <tr><td>Std. deviation</td><td>{{.StdDev}}</td></tr>
  <tr><td>Latest z-score</td><td>{{.LatestZ}}</td></tr>
</table>
{{end}}

<!-- ═══════ 2s5s ═══════ -->
{{with .Spread}}
<h2>5Y-2Y Spread</h2>
<table>
  <tr><td>Mean</td><td>{{.Mean}}</td></tr>
  <tr><td>Std. deviation</td><td>{{.StdDev}}</td></tr>
  <tr><td>Range</td><td>{{.Min}} to {{.Max}}</td></tr>
  <tr><td>Slope / R²</td><td>{{.Slope}} / {{.RSquared}}</td></tr>
  <tr><td>Mean-reverting</td><td class="{{if .Reverting}}positive{{else}}negative{{end}}">{{if .Reverting}}yes, latest z {{.LatestZ}}{{else}}no{{end}}</td></tr>
</table>
{{end}}

<!-- ═══════ CHARTS ═══════ -->
{{range .Charts}}
<div class="chart-container" id="chart-{{.Name}}">{{.SVG}}</div>
{{end}}

{{if .Warnings}}
<h2>Warnings</h2>
<div class="warnings">
  {{range .Warnings}}<p>{{.}}</p>
  {{end}}
</div>
{{end}}

<div class="footer">
  Par yields from the US Treasury daily yield curve. Fits are least-squares on the published tenors.
</div>

</body>
</html>
`
