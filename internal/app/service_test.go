package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bagofwords1/bagofwords-sub004/internal/docrepo"
	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
	"github.com/bagofwords1/bagofwords-sub004/internal/store"
	"github.com/bagofwords1/bagofwords-sub004/internal/util"
)

// --- in-memory fakes ---

type memStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	reports  map[string]store.Report
	sessions map[string]store.RefreshSession
	assets   map[string]store.BlockAsset
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]store.User),
		reports:  make(map[string]store.Report),
		sessions: make(map[string]store.RefreshSession),
		assets:   make(map[string]store.BlockAsset),
	}
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) CreateUser(ctx context.Context, u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) GetUserByName(ctx context.Context, name string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.DisplayName == name {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) HasCredentialedUser(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PasswordHash != "" {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateReport(ctx context.Context, r store.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.UpdatedAt = time.Now()
	m.reports[r.ID] = r
	return nil
}

func (m *memStore) GetReport(ctx context.Context, id string) (store.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return store.Report{}, sql.ErrNoRows
	}
	return r, nil
}

func (m *memStore) ListReports(ctx context.Context) ([]store.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) TouchReport(ctx context.Context, id string, rev int64, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Rev = rev
	r.UpdatedBy = updatedBy
	r.UpdatedAt = time.Now()
	m.reports[id] = r
	return nil
}

func (m *memStore) RenameReport(ctx context.Context, id, title, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Title = title
	r.UpdatedBy = updatedBy
	m.reports[id] = r
	return nil
}

func (m *memStore) DeleteReport(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	return nil
}

func (m *memStore) SearchReports(ctx context.Context, text string, limit int) ([]store.Report, error) {
	return nil, nil
}

func (m *memStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = store.RefreshSession{TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[tokenHash]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	u, ok := m.users[sess.UserID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memStore) CreateBlockAsset(ctx context.Context, a store.BlockAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
	return nil
}

func (m *memStore) GetBlockAsset(ctx context.Context, id string) (store.BlockAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return store.BlockAsset{}, sql.ErrNoRows
	}
	return a, nil
}

func (m *memStore) ListBlockAssets(ctx context.Context, reportID string) ([]store.BlockAsset, error) {
	return nil, nil
}

type memCommit struct {
	content docrepo.Content
	info    store.CommitInfo
}

type memRepo struct {
	mu        sync.Mutex
	commits   map[string][]memCommit
	commitErr error
}

func newMemRepo() *memRepo {
	return &memRepo{commits: make(map[string][]memCommit)}
}

func (m *memRepo) EnsureReportRepo(reportID string, initial docrepo.Content, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commits[reportID]) > 0 {
		return nil
	}
	m.appendLocked(reportID, initial, author, "Create report")
	return nil
}

func (m *memRepo) CommitContent(reportID string, content docrepo.Content, author, message string) (store.CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return store.CommitInfo{}, m.commitErr
	}
	m.appendLocked(reportID, content, author, message)
	history := m.commits[reportID]
	return history[len(history)-1].info, nil
}

func (m *memRepo) appendLocked(reportID string, content docrepo.Content, author, message string) {
	m.commits[reportID] = append(m.commits[reportID], memCommit{
		content: content,
		info: store.CommitInfo{
			Hash:      util.NewID("")[:7],
			Message:   message,
			Author:    author,
			CreatedAt: time.Now(),
		},
	})
}

func (m *memRepo) GetHeadContent(reportID string) (docrepo.Content, store.CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.commits[reportID]
	if len(history) == 0 {
		return docrepo.Content{}, store.CommitInfo{}, errors.New("no such report repo")
	}
	head := history[len(history)-1]
	return head.content, head.info, nil
}

func (m *memRepo) GetContentByHash(reportID, hash string) (docrepo.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commits[reportID] {
		if c.info.Hash == hash {
			return c.content, nil
		}
	}
	return docrepo.Content{}, errors.New("no such commit")
}

func (m *memRepo) History(reportID string, limit int) ([]store.CommitInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.commits[reportID]
	out := make([]store.CommitInfo, 0, len(history))
	for i := len(history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, history[i].info)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *memStore, *memRepo) {
	t.Helper()
	st := newMemStore()
	repo := newMemRepo()
	svc := NewService(Options{
		Store:     st,
		Repo:      repo,
		JWTSecret: []byte("test-secret"),
	})
	return svc, st, repo
}

func asEditor() Session {
	return Session{UserID: "usr_test", UserName: "Tester", Role: "editor"}
}

// seedReport creates a report whose canvas holds a paragraph ("hi",
// span 1..5) followed by a chart block at position 5.
func seedReport(t *testing.T, svc *Service) string {
	t.Helper()
	doc := doctree.NewDocument(
		doctree.NewContainer(
			doctree.NewParagraph("hi"),
			doctree.NewAtomicBlock("chart", map[string]any{"query": "q1"}),
		),
	)
	report := store.Report{ID: "rep_seed", Title: "Seed", Status: "draft", OwnerID: "usr_test", Rev: 1}
	if err := svc.createReportWithDoc(context.Background(), report, doc, "Tester"); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report.ID
}

// --- tests ---

func TestBootstrapSeedsSampleReport(t *testing.T) {
	svc, st, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	reports, _ := st.ListReports(ctx)
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	content, _, err := repo.GetHeadContent(reports[0].ID)
	if err != nil {
		t.Fatalf("head content: %v", err)
	}
	tree, err := doctree.Parse(content.Doc)
	if err != nil {
		t.Fatalf("parse seeded doc: %v", err)
	}
	canvas := tree.Content[0]
	if canvas.ChildCount() != 2 {
		t.Fatalf("seeded canvas has %d blocks, want 2", canvas.ChildCount())
	}
	if canvas.Content[1].Kind != doctree.KindAtomicBlock {
		t.Fatalf("second block kind = %v, want atomic block", canvas.Content[1].Kind)
	}

	// A second bootstrap must not duplicate the seed.
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	reports, _ = st.ListReports(ctx)
	if len(reports) != 1 {
		t.Fatalf("after rerun: %d reports, want 1", len(reports))
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Login(ctx, "Dana", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	// First user in an empty deployment gets admin.
	if session.Role != "admin" {
		t.Fatalf("role = %q, want admin", session.Role)
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != session.UserID || parsed.UserName != "Dana" {
		t.Fatalf("parsed session mismatch: %+v", parsed)
	}

	again, err := svc.Login(ctx, "Dana", "hunter2")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if again.UserID != session.UserID {
		t.Fatal("second login created a new user")
	}

	_, err = svc.Login(ctx, "Dana", "wrong")
	var de *DomainError
	if !errors.As(err, &de) || de.Status != 401 {
		t.Fatalf("wrong password: err = %v, want 401", err)
	}
}

func TestFirstCredentialedLoginClaimsAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Bootstrap seeds a passwordless system user and a sample report;
	// neither may block the admin claim.
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	first, err := svc.Login(ctx, "Dana", "hunter2")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	if first.Role != "admin" {
		t.Fatalf("first role = %q, want admin", first.Role)
	}

	second, err := svc.Login(ctx, "Eve", "s3cret")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if second.Role != "editor" {
		t.Fatalf("second role = %q, want editor", second.Role)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "Dana", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); err == nil {
		t.Fatal("old refresh token must be revoked")
	}
}

func TestMoveBlockPersists(t *testing.T) {
	svc, st, repo := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)

	payload, err := svc.MoveBlock(ctx, asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0,
		Rev:          1,
		SourceIndex:  1,
		TargetIndex:  0,
	})
	if err != nil {
		t.Fatalf("MoveBlock: %v", err)
	}
	if payload["changed"] != true {
		t.Fatal("expected a change")
	}
	if rev := payload["rev"].(uint64); rev != 2 {
		t.Fatalf("rev = %d, want 2", rev)
	}

	doc := payload["doc"].(*doctree.Node)
	if doc.Content[0].Content[0].Kind != doctree.KindAtomicBlock {
		t.Fatal("chart did not move to the front")
	}

	// Persisted through git and Postgres.
	content, info, err := repo.GetHeadContent(reportID)
	if err != nil {
		t.Fatalf("head content: %v", err)
	}
	if info.Message != "Move block" {
		t.Fatalf("commit message = %q", info.Message)
	}
	tree, err := doctree.Parse(content.Doc)
	if err != nil {
		t.Fatalf("parse committed doc: %v", err)
	}
	if tree.Content[0].Content[0].Kind != doctree.KindAtomicBlock {
		t.Fatal("committed doc does not reflect the move")
	}
	meta, _ := st.GetReport(ctx, reportID)
	if meta.Rev != 2 {
		t.Fatalf("stored rev = %d, want 2", meta.Rev)
	}
}

func TestPersistFailureDropsCachedEditor(t *testing.T) {
	svc, st, repo := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)

	repo.commitErr = errors.New("commit refused")
	_, err := svc.MoveBlock(ctx, asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0, Rev: 1, SourceIndex: 1, TargetIndex: 0,
	})
	if err == nil {
		t.Fatal("expected the persist failure to surface")
	}
	repo.commitErr = nil

	// The next read must serve the last persisted state, not a revision
	// storage never saw.
	payload, err := svc.GetReport(ctx, asEditor(), reportID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rev := payload["rev"].(uint64); rev != 1 {
		t.Fatalf("rev = %d, want 1", rev)
	}
	doc := payload["doc"].(*doctree.Node)
	if doc.Content[0].Content[0].Kind != doctree.KindParagraph {
		t.Fatal("unpersisted move leaked into the reloaded document")
	}

	// A retry against the original revision succeeds once storage is back.
	if _, err := svc.MoveBlock(ctx, asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0, Rev: 1, SourceIndex: 1, TargetIndex: 0,
	}); err != nil {
		t.Fatalf("retry MoveBlock: %v", err)
	}
	meta, _ := st.GetReport(ctx, reportID)
	if meta.Rev != 2 {
		t.Fatalf("stored rev = %d, want 2", meta.Rev)
	}
}

func TestMoveBlockSamePositionDoesNotCommit(t *testing.T) {
	svc, _, repo := newTestService(t)
	reportID := seedReport(t, svc)

	payload, err := svc.MoveBlock(context.Background(), asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0,
		Rev:          1,
		SourceIndex:  1,
		TargetIndex:  1,
	})
	if err != nil {
		t.Fatalf("MoveBlock: %v", err)
	}
	if payload["changed"] != false {
		t.Fatal("drop on the source index must be a no-op")
	}
	history, _ := repo.History(reportID, 0)
	if len(history) != 1 {
		t.Fatalf("got %d commits, want only the initial one", len(history))
	}
}

func TestMoveBlockStaleRevisionMapsToConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	reportID := seedReport(t, svc)

	_, err := svc.MoveBlock(context.Background(), asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0,
		Rev:          99,
		SourceIndex:  0,
		TargetIndex:  1,
	})
	if !errors.Is(err, editor.ErrStaleRevision) {
		t.Fatalf("err = %v, want stale revision", err)
	}
	var de *DomainError
	if !errors.As(mapError(err), &de) || de.Status != 409 || de.Code != "STALE_REVISION" {
		t.Fatalf("mapped error = %+v, want 409 STALE_REVISION", de)
	}
}

func TestInsertBlockRejectsNestingViolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	reportID := seedReport(t, svc)

	// Atomic blocks may not sit directly under the document root.
	block := json.RawMessage(`{"type": "atomicBlock", "attrs": {"kind": "kpi"}}`)
	_, err := svc.InsertBlock(context.Background(), asEditor(), reportID, InsertBlockRequest{
		Pos:   0,
		Rev:   1,
		Block: block,
	})
	if !errors.Is(err, doctree.ErrInvalidPosition) {
		t.Fatalf("err = %v, want invalid position", err)
	}
	var de *DomainError
	if !errors.As(mapError(err), &de) || de.Status != 422 {
		t.Fatalf("mapped error = %+v, want 422", de)
	}
}

func TestInsertBlockCommits(t *testing.T) {
	svc, _, repo := newTestService(t)
	reportID := seedReport(t, svc)

	block := json.RawMessage(`{"type": "atomicBlock", "attrs": {"kind": "kpi"}}`)
	payload, err := svc.InsertBlock(context.Background(), asEditor(), reportID, InsertBlockRequest{
		Pos:   6,
		Rev:   1,
		Block: block,
	})
	if err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}
	doc := payload["doc"].(*doctree.Node)
	if doc.Content[0].ChildCount() != 3 {
		t.Fatalf("canvas has %d blocks, want 3", doc.Content[0].ChildCount())
	}
	_, info, _ := repo.GetHeadContent(reportID)
	if info.Message != "Insert block" {
		t.Fatalf("commit message = %q", info.Message)
	}
}

func TestResizeBlockFloorsAndPersists(t *testing.T) {
	svc, _, repo := newTestService(t)
	reportID := seedReport(t, svc)

	payload, err := svc.ResizeBlock(context.Background(), asEditor(), reportID, ResizeBlockRequest{
		BlockPos: 5,
		Rev:      1,
		StartX:   500,
		StartY:   500,
		X:        0,
		Y:        0,
	})
	if err != nil {
		t.Fatalf("ResizeBlock: %v", err)
	}
	if payload["changed"] != true {
		t.Fatal("expected a change")
	}
	doc := payload["doc"].(*doctree.Node)
	block := doc.Content[0].Content[1]
	if w := block.IntAttr("width", 0); w != editor.MinBlockWidth {
		t.Fatalf("width = %d, want floor %d", w, editor.MinBlockWidth)
	}
	if h := block.IntAttr("height", 0); h != editor.MinBlockHeight {
		t.Fatalf("height = %d, want floor %d", h, editor.MinBlockHeight)
	}
	_, info, _ := repo.GetHeadContent(reportID)
	if info.Message != "Resize block" {
		t.Fatalf("commit message = %q", info.Message)
	}
}

func TestDeleteRangeRemovesBlock(t *testing.T) {
	svc, _, _ := newTestService(t)
	reportID := seedReport(t, svc)

	payload, err := svc.DeleteRange(context.Background(), asEditor(), reportID, DeleteRangeRequest{
		From: 5,
		To:   6,
		Rev:  1,
	})
	if err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}
	doc := payload["doc"].(*doctree.Node)
	if doc.Content[0].ChildCount() != 1 {
		t.Fatalf("canvas has %d blocks, want 1", doc.Content[0].ChildCount())
	}
}

func TestReplaceContentAdvancesRevision(t *testing.T) {
	svc, _, repo := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)

	replacement := json.RawMessage(`{
		"type": "document",
		"content": [{
			"type": "container",
			"content": [{"type": "paragraph", "text": "rewritten"}]
		}]
	}`)
	payload, err := svc.ReplaceContent(ctx, asEditor(), reportID, replacement)
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	if rev := payload["rev"].(uint64); rev != 2 {
		t.Fatalf("rev = %d, want 2", rev)
	}
	_, info, _ := repo.GetHeadContent(reportID)
	if info.Message != "Save content" {
		t.Fatalf("commit message = %q", info.Message)
	}

	// Positions minted against the old content are now stale.
	_, err = svc.MoveBlock(ctx, asEditor(), reportID, MoveBlockRequest{
		ContainerPos: 0, Rev: 1, SourceIndex: 0, TargetIndex: 0,
	})
	if !errors.Is(err, editor.ErrStaleRevision) {
		t.Fatalf("err = %v, want stale revision", err)
	}
}

func TestReplaceContentRejectsBadDocuments(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)

	cases := map[string]string{
		"non-document root": `{"type": "container"}`,
		"bad nesting":       `{"type": "document", "content": [{"type": "atomicBlock", "attrs": {"kind": "chart"}}]}`,
		"unknown type":      `{"type": "spreadsheet"}`,
	}
	for name, raw := range cases {
		_, err := svc.ReplaceContent(ctx, asEditor(), reportID, json.RawMessage(raw))
		var de *DomainError
		if !errors.As(mapError(err), &de) || de.Status != 422 {
			t.Errorf("%s: err = %v, want 422", name, err)
		}
	}
}

func TestFindAncestorFromCursor(t *testing.T) {
	svc, _, _ := newTestService(t)
	reportID := seedReport(t, svc)

	payload, err := svc.FindAncestor(context.Background(), asEditor(), reportID, AncestorRequest{
		Anchor:   2,
		Rev:      1,
		TypeName: "container",
	})
	if err != nil {
		t.Fatalf("FindAncestor: %v", err)
	}
	if payload["found"] != true {
		t.Fatal("expected the enclosing container to be found")
	}
	if payload["pos"] != 0 {
		t.Fatalf("pos = %v, want 0", payload["pos"])
	}
}

func TestViewerCannotMutate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)
	viewer := Session{UserID: "usr_v", UserName: "Viewer", Role: "viewer"}

	_, err := svc.MoveBlock(ctx, viewer, reportID, MoveBlockRequest{ContainerPos: 0, Rev: 1, SourceIndex: 0, TargetIndex: 1})
	var de *DomainError
	if !errors.As(err, &de) || de.Status != 403 {
		t.Fatalf("err = %v, want 403", err)
	}

	// Read access still works.
	if _, err := svc.GetReport(ctx, viewer, reportID); err != nil {
		t.Fatalf("viewer GetReport: %v", err)
	}
}

func TestDeleteReportRequiresAdmin(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	reportID := seedReport(t, svc)

	err := svc.DeleteReport(ctx, asEditor(), reportID)
	var de *DomainError
	if !errors.As(err, &de) || de.Status != 403 {
		t.Fatalf("editor delete: err = %v, want 403", err)
	}

	admin := Session{UserID: "usr_a", UserName: "Admin", Role: "admin"}
	if err := svc.DeleteReport(ctx, admin, reportID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := st.GetReport(ctx, reportID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatal("report still present after delete")
	}
}

func TestGetReportDocumentForExport(t *testing.T) {
	svc, _, _ := newTestService(t)
	reportID := seedReport(t, svc)

	doc, err := svc.GetReportDocument(context.Background(), reportID, "latest")
	if err != nil {
		t.Fatalf("GetReportDocument: %v", err)
	}
	if doc.Title != "Seed" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !strings.Contains(doc.HTML, "<p>hi</p>") || !strings.Contains(doc.HTML, "block-chart") {
		t.Fatalf("rendered HTML missing block markup:\n%s", doc.HTML)
	}
}
