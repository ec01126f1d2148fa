package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Name}} Q{{.Result.Quarter}} FY{{.Result.FiscalYear}} results</title>
  <style>
    body { margin: 0; padding: 20px; background: #eef1f5; font-family: Arial, Helvetica, sans-serif; color: #1f2933; }
    .card { max-width: 600px; margin: 0 auto; background: #fff; border: 1px solid #d9e2ec; border-radius: 6px; }
    .head { padding: 18px 22px; background: #102a43; color: #f0f4f8; }
    .sym { font-size: 22px; font-weight: bold; }
    .period { font-size: 14px; color: #bcccdc; }
    .sentiment { display: inline-block; margin-top: 6px; padding: 3px 8px; font-size: 11px; font-weight: bold; text-transform: uppercase; border-radius: 3px; background: #486581; }
    .sentiment.strong_positive, .sentiment.positive { background: #2f8132; }
    .sentiment.negative, .sentiment.strong_negative { background: #ab091e; }
    .block { padding: 14px 22px; border-top: 1px solid #e4e7eb; }
    .block h2 { margin: 0 0 8px; font-size: 11px; color: #627d98; text-transform: uppercase; letter-spacing: 1px; }
    table.figures { width: 100%; font-size: 14px; border-collapse: collapse; }
    table.figures td { padding: 4px 0; }
    table.figures td.k { width: 110px; color: #627d98; }
    ul { margin: 0; padding-left: 18px; font-size: 14px; }
    li { margin-bottom: 4px; }
    .beat { color: #2f8132; font-weight: bold; }
    .miss { color: #ab091e; font-weight: bold; }
    .action { padding: 10px 14px; font-size: 13px; background: #f5f7fa; border-left: 3px solid #102a43; }
    .filing { display: inline-block; margin-top: 10px; padding: 8px 16px; font-size: 13px; color: #fff !important; background: #102a43; border-radius: 4px; text-decoration: none; }
    .foot { padding: 12px 22px; font-size: 11px; color: #9fb3c8; text-align: center; border-top: 1px solid #e4e7eb; }
  </style>
</head>
<body>
  <div class="card">
    <div class="head">
      <div class="sym">{{.Result.Sentiment.Emoji}} {{.Name}}</div>
      <div class="period">Q{{.Result.Quarter}} FY{{.Result.FiscalYear}} results</div>
      <span class="sentiment {{.Result.Sentiment}}">{{.Result.Sentiment}}</span>
    </div>

    <div class="block">
      <h2>Reported</h2>
      <table class="figures">
        <tr><td class="k">Revenue</td><td>{{.Revenue}}</td></tr>
        <tr><td class="k">Profit</td><td>{{.Profit}}</td></tr>
        <tr><td class="k">EPS</td><td>{{.EPS}}</td></tr>
      </table>
      {{with .Result.Announcement.AttachmentURL}}<a href="{{.}}" class="filing" target="_blank" rel="noopener">View filing</a>{{end}}
    </div>

    {{if .YoY}}
    <div class="block">
      <h2>Year on year</h2>
      <ul>{{range .YoY}}<li>{{.Label}}: {{.Value}}</li>{{end}}</ul>
    </div>
    {{end}}

    {{if .QoQ}}
    <div class="block">
      <h2>Quarter on quarter</h2>
      <ul>{{range .QoQ}}<li>{{.Label}}: {{.Value}}</li>{{end}}</ul>
    </div>
    {{end}}

    {{if .Beats}}
    <div class="block">
      <h2>vs estimates</h2>
      <ul>{{range .Beats}}<li>{{.Label}}: <span class="{{if .Beat}}beat{{else}}miss{{end}}">{{.Value}}</span></li>{{end}}</ul>
    </div>
    {{end}}

    <div class="block">
      <h2>Action</h2>
      <div class="action">{{.Result.ActionText}}</div>
    </div>

    <div class="foot">
      {{.Result.Metrics.ExtractionMethod}}{{if .Flags}} {{.Flags}}{{end}} · detected in {{printf "%.1f" .Result.DetectionTimeSec}}s
    </div>
  </div>
</body>
</html>`
