package docrepo

import (
	"encoding/json"
	"testing"
)

func testContent(title, text string) Content {
	doc := map[string]any{
		"type": "document",
		"content": []any{
			map[string]any{
				"type": "container",
				"content": []any{
					map[string]any{"type": "paragraph", "text": text},
				},
			},
		},
	}
	raw, _ := json.Marshal(doc)
	return Content{Title: title, Doc: raw}
}

func TestEnsureReportRepoIsIdempotent(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureReportRepo("rep_1", testContent("Q3", "hello"), "Analyst"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := svc.EnsureReportRepo("rep_1", testContent("Q3 again", "other"), "Analyst"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	content, _, err := svc.GetHeadContent("rep_1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if content.Title != "Q3" {
		t.Fatalf("title = %q, second ensure must not overwrite", content.Title)
	}
}

func TestCommitAndReadBack(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureReportRepo("rep_1", testContent("Q3", "v1"), "Analyst"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	info, err := svc.CommitContent("rep_1", testContent("Q3", "v2"), "Analyst", "Move block")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if info.Hash == "" || info.Author != "Analyst" {
		t.Fatalf("commit info = %+v", info)
	}

	content, head, err := svc.GetHeadContent("rep_1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Message != "Move block" {
		t.Fatalf("head message = %q", head.Message)
	}
	var doc map[string]any
	if err := json.Unmarshal(content.Doc, &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if doc["type"] != "document" {
		t.Fatalf("doc type = %v", doc["type"])
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureReportRepo("rep_1", testContent("Q3", "v1"), "Analyst"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, msg := range []string{"Insert block", "Resize block"} {
		if _, err := svc.CommitContent("rep_1", testContent("Q3", msg), "Analyst", msg); err != nil {
			t.Fatalf("commit %q: %v", msg, err)
		}
	}

	items, err := svc.History("rep_1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("history length = %d, want 3", len(items))
	}
	if items[0].Message != "Resize block" || items[2].Message != "Create report" {
		t.Fatalf("unexpected order: %q ... %q", items[0].Message, items[2].Message)
	}

	limited, err := svc.History("rep_1", 2)
	if err != nil {
		t.Fatalf("limited history: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited history length = %d, want 2", len(limited))
	}
}

func TestGetContentByHash(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureReportRepo("rep_1", testContent("Q3", "v1"), "Analyst"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := svc.CommitContent("rep_1", testContent("Q3", "v2"), "Analyst", "Edit"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	items, err := svc.History("rep_1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	first := items[len(items)-1]

	content, err := svc.GetContentByHash("rep_1", first.Hash)
	if err != nil {
		t.Fatalf("content by hash: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(content.Doc, &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	container := doc["content"].([]any)[0].(map[string]any)
	para := container["content"].([]any)[0].(map[string]any)
	if para["text"] != "v1" {
		t.Fatalf("historical text = %v, want v1", para["text"])
	}
}
