package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bagofwords1/bagofwords-sub004/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func login(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/session/login", "", map[string]string{"name": name, "password": "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d: %v", resp.StatusCode, body)
	}
	return body["token"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}
}

func TestReportsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/reports", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %v", resp.StatusCode, body)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "UNAUTHORIZED" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestBlockMoveRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "Dana")

	// Create a report, then build a canvas: a paragraph and a chart.
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/api/reports", token, map[string]string{"title": "Quarterly"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create report: %d %v", resp.StatusCode, created)
	}
	reportID := created["id"].(string)
	base := fmt.Sprintf("%s/api/reports/%s", srv.URL, reportID)

	resp, got := doJSON(t, http.MethodGet, base, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get report: %d %v", resp.StatusCode, got)
	}
	rev := int(got["rev"].(float64))

	insert := func(rev int, pos int, block map[string]any) int {
		t.Helper()
		resp, body := doJSON(t, http.MethodPost, base+"/blocks", token, map[string]any{
			"pos": pos, "rev": rev, "block": block,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("insert block: %d %v", resp.StatusCode, body)
		}
		return int(body["rev"].(float64))
	}

	// Empty canvas content spans position 1. The paragraph "hi" then
	// occupies 1..5, so the chart lands at 5.
	rev = insert(rev, 1, map[string]any{"type": "paragraph", "text": "hi"})
	rev = insert(rev, 5, map[string]any{"type": "atomicBlock", "attrs": map[string]any{"kind": "chart"}})

	// Move the chart in front of the paragraph.
	resp, moved := doJSON(t, http.MethodPost, base+"/blocks/move", token, map[string]any{
		"containerPos": 0, "rev": rev, "sourceIndex": 1, "targetIndex": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move block: %d %v", resp.StatusCode, moved)
	}
	if moved["changed"] != true {
		t.Fatalf("move reported no change: %v", moved)
	}
	doc := moved["doc"].(map[string]any)
	canvas := doc["content"].([]any)[0].(map[string]any)
	first := canvas["content"].([]any)[0].(map[string]any)
	if first["type"] != "atomicBlock" {
		t.Fatalf("first block type = %v, want atomicBlock", first["type"])
	}

	// Replaying the move with the stale revision conflicts.
	resp, conflict := doJSON(t, http.MethodPost, base+"/blocks/move", token, map[string]any{
		"containerPos": 0, "rev": rev, "sourceIndex": 0, "targetIndex": 1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stale move status = %d, want 409: %v", resp.StatusCode, conflict)
	}
	errObj := conflict["error"].(map[string]any)
	if errObj["code"] != "STALE_REVISION" {
		t.Fatalf("code = %v, want STALE_REVISION", errObj["code"])
	}
}

func TestViewerForbiddenOnMutation(t *testing.T) {
	srv, svc := newTestServer(t)
	admin := login(t, srv, "Admin")

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/api/reports", admin, map[string]string{"title": "Locked"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create report: %d %v", resp.StatusCode, created)
	}
	reportID := created["id"].(string)

	// Mint a viewer session directly; login never grants viewer.
	watcher := store.User{ID: "usr_viewer", DisplayName: "Watcher", Role: "viewer"}
	if err := svc.store.CreateUser(context.Background(), watcher); err != nil {
		t.Fatalf("seed viewer: %v", err)
	}
	viewer, err := svc.issueSession(context.Background(), watcher)
	if err != nil {
		t.Fatalf("issue viewer session: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/reports/%s/blocks/move", srv.URL, reportID), viewer.Token, map[string]any{
		"containerPos": 0, "rev": 1, "sourceIndex": 0, "targetIndex": 0,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %v", resp.StatusCode, body)
	}
}
