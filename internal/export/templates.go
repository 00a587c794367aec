package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData feeds the report page template.
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
}

var reportTemplate = template.Must(template.New("report").Parse(reportPage))

// RenderReportHTML wraps the rendered block content in a printable
// page.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .canvas { display: block; }
    .block { border: 1px solid #ccc; border-radius: 4px; margin: 0.5rem 0; background: #fafafa; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
