package export

import (
	"encoding/json"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
)

func TestRenderDocHTML(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "document",
		"content": [{
			"type": "container",
			"content": [
				{"type": "paragraph", "text": "revenue < target"},
				{"type": "atomicBlock", "attrs": {"kind": "chart", "width": 300, "height": 200}}
			]
		}]
	}`)

	out, err := RenderDocHTML(editor.DefaultRegistry(), raw)
	if err != nil {
		t.Fatalf("RenderDocHTML: %v", err)
	}
	if !strings.Contains(out, "<p>revenue &lt; target</p>") {
		t.Fatalf("paragraph not escaped:\n%s", out)
	}
	if !strings.Contains(out, "block-chart") || !strings.Contains(out, "width:300px;height:200px") {
		t.Fatalf("block markup missing:\n%s", out)
	}
}

func TestRenderDocHTMLRejectsBadContent(t *testing.T) {
	views := editor.DefaultRegistry()
	if _, err := RenderDocHTML(views, nil); err == nil {
		t.Fatal("expected error for empty content")
	}
	if _, err := RenderDocHTML(views, json.RawMessage(`{"type":"spreadsheet"}`)); err == nil {
		t.Fatal("expected error for unknown node type")
	}
}

func TestRenderReportHTML(t *testing.T) {
	page, err := RenderReportHTML(TemplateData{
		Title:       "Q3 Revenue",
		ContentHTML: template.HTML(`<section class="canvas"></section>`),
		Author:      "Analyst",
		UpdatedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}
	if !strings.Contains(page, "<h1>Q3 Revenue</h1>") {
		t.Fatalf("title missing:\n%s", page)
	}
	if !strings.Contains(page, `<section class="canvas"></section>`) {
		t.Fatal("content must pass through unescaped")
	}
	if !strings.Contains(page, "Aug 1, 2026") {
		t.Fatal("updated date missing")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Q3 Revenue Report": "Q3-Revenue-Report",
		"metrics/2026":      "metrics2026",
		"":                  "report",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
