// Package app wires the editing engine to storage, sessions, search
// and export, and exposes the HTTP API.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bagofwords1/bagofwords-sub004/internal/auth"
	"github.com/bagofwords1/bagofwords-sub004/internal/docrepo"
	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
	"github.com/bagofwords1/bagofwords-sub004/internal/export"
	"github.com/bagofwords1/bagofwords-sub004/internal/rbac"
	"github.com/bagofwords1/bagofwords-sub004/internal/search"
	"github.com/bagofwords1/bagofwords-sub004/internal/store"
	"github.com/bagofwords1/bagofwords-sub004/internal/util"
)

// Store is the report metadata store backed by Postgres.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u store.User) error
	GetUser(ctx context.Context, id string) (store.User, error)
	GetUserByName(ctx context.Context, name string) (store.User, error)
	HasCredentialedUser(ctx context.Context) (bool, error)

	CreateReport(ctx context.Context, r store.Report) error
	GetReport(ctx context.Context, id string) (store.Report, error)
	ListReports(ctx context.Context) ([]store.Report, error)
	TouchReport(ctx context.Context, id string, rev int64, updatedBy string) error
	RenameReport(ctx context.Context, id, title, updatedBy string) error
	DeleteReport(ctx context.Context, id string) error
	SearchReports(ctx context.Context, text string, limit int) ([]store.Report, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error

	CreateBlockAsset(ctx context.Context, a store.BlockAsset) error
	GetBlockAsset(ctx context.Context, id string) (store.BlockAsset, error)
	ListBlockAssets(ctx context.Context, reportID string) ([]store.BlockAsset, error)
}

// ContentRepo versions report documents in git.
type ContentRepo interface {
	EnsureReportRepo(reportID string, initial docrepo.Content, author string) error
	CommitContent(reportID string, content docrepo.Content, author, message string) (store.CommitInfo, error)
	GetHeadContent(reportID string) (docrepo.Content, store.CommitInfo, error)
	GetContentByHash(reportID, hash string) (docrepo.Content, error)
	History(reportID string, limit int) ([]store.CommitInfo, error)
}

// RefreshStore holds refresh tokens in Redis. A nil RefreshStore (or a
// Redis outage) falls back to the Postgres refresh_sessions table.
type RefreshStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// AssetStore uploads block payload files to object storage; nil
// disables the asset endpoints.
type AssetStore interface {
	Upload(ctx context.Context, reportID, assetID, mimeType string, size int64, body io.Reader) (string, error)
	PresignGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Session is an authenticated caller.
type Session struct {
	UserID       string
	UserName     string
	Role         string
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service implements the API operations.
type Service struct {
	store    Store
	repo     ContentRepo
	refresh  RefreshStore
	searcher *search.Service
	assets   AssetStore

	views    *editor.Registry
	exporter *export.Service

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	// One live editor per report; per-report locks serialize access
	// since an Editor is confined to a single goroutine.
	mu      sync.Mutex
	editors map[string]*editorSlot
}

type editorSlot struct {
	mu sync.Mutex
	ed *editor.Editor
}

type Options struct {
	Store      Store
	Repo       ContentRepo
	Refresh    RefreshStore
	Searcher   *search.Service
	Assets     AssetStore
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewService(opts Options) *Service {
	s := &Service{
		store:      opts.Store,
		repo:       opts.Repo,
		refresh:    opts.Refresh,
		searcher:   opts.Searcher,
		assets:     opts.Assets,
		views:      editor.DefaultRegistry(),
		secret:     opts.JWTSecret,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		editors:    make(map[string]*editorSlot),
	}
	if s.accessTTL == 0 {
		s.accessTTL = 15 * time.Minute
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = 30 * 24 * time.Hour
	}
	s.exporter = export.NewService(s, s.views)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Views exposes the node view registry so hosts can register custom
// block renderers.
func (s *Service) Views() *editor.Registry { return s.views }

// --- sessions ---

// Login authenticates a user by display name and password and issues
// tokens. The first login under an unclaimed name registers it; the
// first login that sets a password claims admin. Seeded system users
// carry no password and do not count against the claim.
func (s *Service) Login(ctx context.Context, name, password string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return Session{}, domainError(422, "VALIDATION_ERROR", "name and password are required", nil)
	}

	user, err := s.store.GetUserByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		role := "editor"
		if claimed, claimErr := s.store.HasCredentialedUser(ctx); claimErr == nil && !claimed {
			role = "admin"
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return Session{}, fmt.Errorf("hash password: %w", err)
		}
		user = store.User{
			ID:           util.NewID("usr"),
			DisplayName:  name,
			Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@local",
			PasswordHash: hash,
			Role:         role,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return Session{}, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	} else if !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, domainError(401, "UNAUTHORIZED", "Wrong name or password", nil)
	}

	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.accessTTL)
	token, err := auth.IssueToken(s.secret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: string(rbac.Normalize(user.Role)),
		JTI:  util.NewID(""),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := util.NewID("")
	refreshExpiry := time.Now().Add(s.refreshTTL)
	hash := auth.HashToken(refreshToken)
	if err := s.saveRefresh(ctx, hash, user.ID, refreshExpiry); err != nil {
		return Session{}, err
	}

	return Session{
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         string(rbac.Normalize(user.Role)),
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) saveRefresh(ctx context.Context, hash, userID string, expiresAt time.Time) error {
	if s.refresh != nil {
		if err := s.refresh.Save(ctx, hash, userID, expiresAt); err == nil {
			return nil
		} else {
			log.Printf("session: redis save failed, falling back to postgres: %v", err)
		}
	}
	if err := s.store.SaveRefreshSession(ctx, hash, userID, expiresAt); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// SessionFromToken parses and validates a bearer token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:   claims.Sub,
		UserName: claims.Name,
		Role:     string(rbac.Normalize(claims.Role)),
	}, nil
}

// Refresh rotates a refresh token and issues a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)

	var user store.User
	if s.refresh != nil {
		if userID, err := s.refresh.Lookup(ctx, hash); err == nil {
			user, err = s.store.GetUser(ctx, userID)
			if err != nil {
				return Session{}, domainError(401, "UNAUTHORIZED", "Unknown session user", nil)
			}
			_ = s.refresh.Revoke(ctx, hash)
			return s.issueSession(ctx, user)
		}
	}

	user, err := s.store.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, domainError(401, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	_ = s.store.RevokeRefreshSession(ctx, hash)
	return s.issueSession(ctx, user)
}

// Logout revokes a refresh token in both backends.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	hash := auth.HashToken(refreshToken)
	if s.refresh != nil {
		_ = s.refresh.Revoke(ctx, hash)
	}
	return s.store.RevokeRefreshSession(ctx, hash)
}

func (s *Service) authorize(session Session, action rbac.Action) error {
	if !rbac.Can(rbac.Normalize(session.Role), action) {
		return domainError(403, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// --- bootstrap ---

// Bootstrap seeds a sample report when the store is empty and warms
// the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}

	if len(reports) == 0 {
		owner := store.User{
			ID:          util.NewID("usr"),
			DisplayName: "System",
			Email:       "system@local",
			Role:        "admin",
		}
		if err := s.store.CreateUser(ctx, owner); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}

		seed := doctree.NewDocument(
			doctree.NewContainer(
				doctree.NewParagraph("Welcome to your first report."),
				doctree.NewAtomicBlock("chart", map[string]any{"query": "select 1"}),
			),
		)
		report := store.Report{
			ID:        util.NewID("rep"),
			Title:     "Getting Started",
			Status:    "draft",
			OwnerID:   owner.ID,
			Rev:       1,
			UpdatedBy: owner.ID,
		}
		if err := s.createReportWithDoc(ctx, report, seed, owner.DisplayName); err != nil {
			return err
		}
		reports = []store.Report{report}
	}

	s.reindexSearch(ctx, reports)
	return nil
}

func (s *Service) reindexSearch(ctx context.Context, reports []store.Report) {
	if s.searcher == nil {
		return
	}
	records := make([]search.ReportRecord, 0, len(reports))
	for _, r := range reports {
		rec := search.ReportRecord{ID: r.ID, Title: r.Title, Status: r.Status}
		if content, _, err := s.repo.GetHeadContent(r.ID); err == nil {
			if tree, err := doctree.Parse(content.Doc); err == nil {
				rec.Text = tree.PlainText()
			}
		}
		records = append(records, rec)
	}
	s.searcher.ReindexAll(records)
}

// --- reports ---

func (s *Service) createReportWithDoc(ctx context.Context, r store.Report, doc *doctree.Node, author string) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := s.repo.EnsureReportRepo(r.ID, docrepo.Content{Title: r.Title, Doc: raw}, author); err != nil {
		return fmt.Errorf("create report repo: %w", err)
	}
	s.indexReport(r, doc)
	return nil
}

func (s *Service) indexReport(r store.Report, doc *doctree.Node) {
	if s.searcher == nil {
		return
	}
	s.searcher.IndexReport(search.ReportRecord{
		ID:     r.ID,
		Title:  r.Title,
		Text:   doc.PlainText(),
		Status: r.Status,
	})
}

// CreateReport creates an empty report with one canvas container.
func (s *Service) CreateReport(ctx context.Context, session Session, title string) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "title is required", nil)
	}

	report := store.Report{
		ID:        util.NewID("rep"),
		Title:     title,
		Status:    "draft",
		OwnerID:   session.UserID,
		Rev:       1,
		UpdatedBy: session.UserID,
	}
	doc := doctree.NewDocument(doctree.NewContainer())
	if err := s.createReportWithDoc(ctx, report, doc, session.UserName); err != nil {
		return nil, err
	}
	return reportPayload(report), nil
}

func (s *Service) ListReports(ctx context.Context, session Session) ([]map[string]any, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	items := make([]map[string]any, 0, len(reports))
	for _, r := range reports {
		items = append(items, reportPayload(r))
	}
	return items, nil
}

// GetReport returns report metadata plus the live document and its
// revision, which clients must echo back in mutation positions.
func (s *Service) GetReport(ctx context.Context, session Session, reportID string) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	payload := reportPayload(report)
	payload["doc"] = slot.ed.Doc()
	payload["rev"] = slot.ed.Rev()
	return payload, nil
}

func (s *Service) RenameReport(ctx context.Context, session Session, reportID, title string) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.RenameReport(ctx, reportID, title, session.UserID); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if s.searcher != nil {
		rec := search.ReportRecord{ID: report.ID, Title: report.Title, Status: report.Status}
		if content, _, err := s.repo.GetHeadContent(reportID); err == nil {
			if tree, err := doctree.Parse(content.Doc); err == nil {
				rec.Text = tree.PlainText()
			}
		}
		s.searcher.IndexReport(rec)
	}
	return reportPayload(report), nil
}

func (s *Service) DeleteReport(ctx context.Context, session Session, reportID string) error {
	if err := s.authorize(session, rbac.ActionAdmin); err != nil {
		return err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, reportID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.editors, reportID)
	s.mu.Unlock()
	if s.searcher != nil {
		s.searcher.DeleteReport(reportID)
	}
	return nil
}

// History lists content revisions, newest first.
func (s *Service) History(ctx context.Context, session Session, reportID string, limit int) ([]map[string]any, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	commits, err := s.repo.History(reportID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	items := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		items = append(items, map[string]any{
			"hash":      c.Hash,
			"message":   strings.TrimSpace(c.Message),
			"author":    c.Author,
			"createdAt": c.CreatedAt,
		})
	}
	return items, nil
}

// Search queries the report index.
func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.searcher.Search(ctx, q), nil
}

func reportPayload(r store.Report) map[string]any {
	return map[string]any{
		"id":        r.ID,
		"title":     r.Title,
		"status":    r.Status,
		"ownerId":   r.OwnerID,
		"rev":       r.Rev,
		"updatedBy": r.UpdatedBy,
		"updatedAt": r.UpdatedAt,
	}
}

// --- editor operations ---

func (s *Service) editorFor(reportID string) (*editorSlot, error) {
	s.mu.Lock()
	slot, ok := s.editors[reportID]
	if !ok {
		slot = &editorSlot{}
		s.editors[reportID] = slot
	}
	s.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.ed == nil {
		content, _, err := s.repo.GetHeadContent(reportID)
		if err != nil {
			return nil, fmt.Errorf("load report content: %w", err)
		}
		tree, err := doctree.Parse(content.Doc)
		if err != nil {
			return nil, fmt.Errorf("parse report content: %w", err)
		}
		slot.ed = editor.New(tree)
	}
	return slot, nil
}

// MoveBlockRequest reorders one child of a container.
type MoveBlockRequest struct {
	ContainerPos int    `json:"containerPos"`
	Rev          uint64 `json:"rev"`
	SourceIndex  int    `json:"sourceIndex"`
	TargetIndex  int    `json:"targetIndex"`
}

// MoveBlock runs the drag-reorder protocol as one atomic operation:
// start the drag on the container's child, drop it on the target
// index, and persist only if the tree changed.
func (s *Service) MoveBlock(ctx context.Context, session Session, reportID string, req MoveBlockRequest) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	ed := slot.ed

	if err := ed.DragStart(editor.Pos{Offset: req.ContainerPos, Rev: req.Rev}, req.SourceIndex); err != nil {
		return nil, err
	}
	changed, err := ed.Drop(req.TargetIndex)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.persistSlot(ctx, reportID, slot, session, "Move block"); err != nil {
			return nil, err
		}
	}
	return mutationPayload(ed, changed), nil
}

// ResizeBlockRequest resizes an atomic block via pointer coordinates.
type ResizeBlockRequest struct {
	BlockPos int    `json:"blockPos"`
	Rev      uint64 `json:"rev"`
	StartX   int    `json:"startX"`
	StartY   int    `json:"startY"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// ResizeBlock runs the resize protocol end to end for one pointer
// gesture; dimensions floor at the editor minimums.
func (s *Service) ResizeBlock(ctx context.Context, session Session, reportID string, req ResizeBlockRequest) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	ed := slot.ed

	if err := ed.ResizeStart(editor.Pos{Offset: req.BlockPos, Rev: req.Rev}, req.StartX, req.StartY); err != nil {
		return nil, err
	}
	changed, err := ed.ResizeMove(req.X, req.Y)
	ed.ResizeEnd()
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.persistSlot(ctx, reportID, slot, session, "Resize block"); err != nil {
			return nil, err
		}
	}
	return mutationPayload(ed, changed), nil
}

// InsertBlockRequest inserts a serialized node at a position.
type InsertBlockRequest struct {
	Pos   int             `json:"pos"`
	Rev   uint64          `json:"rev"`
	Block json.RawMessage `json:"block"`
}

func (s *Service) InsertBlock(ctx context.Context, session Session, reportID string, req InsertBlockRequest) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	node, err := doctree.Parse(req.Block)
	if err != nil {
		return nil, domainError(422, "VALIDATION_ERROR", "invalid block", err.Error())
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	ed := slot.ed

	changed, err := ed.InsertBlock(editor.Pos{Offset: req.Pos, Rev: req.Rev}, node)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.persistSlot(ctx, reportID, slot, session, "Insert block"); err != nil {
			return nil, err
		}
	}
	return mutationPayload(ed, changed), nil
}

// DeleteRangeRequest removes the span [from, to).
type DeleteRangeRequest struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Rev  uint64 `json:"rev"`
}

func (s *Service) DeleteRange(ctx context.Context, session Session, reportID string, req DeleteRangeRequest) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	ed := slot.ed

	changed, err := ed.DeleteRange(
		editor.Pos{Offset: req.From, Rev: req.Rev},
		editor.Pos{Offset: req.To, Rev: req.Rev},
	)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.persistSlot(ctx, reportID, slot, session, "Delete blocks"); err != nil {
			return nil, err
		}
	}
	return mutationPayload(ed, changed), nil
}

// ReplaceContent swaps in a full serialized document, as the host
// editor does on autosave. The revision sequence keeps advancing so
// positions held against the old content are rejected as stale.
func (s *Service) ReplaceContent(ctx context.Context, session Session, reportID string, raw json.RawMessage) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	tree, err := doctree.Parse(raw)
	if err != nil {
		return nil, domainError(422, "VALIDATION_ERROR", "invalid document", err.Error())
	}
	if tree.Kind != doctree.KindDocument {
		return nil, domainError(422, "VALIDATION_ERROR", "root node must be a document", nil)
	}
	if err := doctree.ValidateNesting(tree); err != nil {
		return nil, domainError(422, "VALIDATION_ERROR", "document violates nesting rules", err.Error())
	}

	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	slot.ed = editor.NewAt(tree, slot.ed.Rev()+1)
	if err := s.persistSlot(ctx, reportID, slot, session, "Save content"); err != nil {
		return nil, err
	}
	return mutationPayload(slot.ed, true), nil
}

// AncestorRequest locates the nearest enclosing node of a type from an
// anchor position.
type AncestorRequest struct {
	Anchor   int    `json:"anchor"`
	Rev      uint64 `json:"rev"`
	TypeName string `json:"type"`
}

func (s *Service) FindAncestor(ctx context.Context, session Session, reportID string, req AncestorRequest) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	slot, err := s.editorFor(reportID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	ed := slot.ed

	if err := ed.SetCursor(editor.Pos{Offset: req.Anchor, Rev: req.Rev}); err != nil {
		return nil, err
	}
	pos, ok := ed.FindAncestorOfType(req.TypeName)
	payload := map[string]any{"found": ok}
	if ok {
		payload["pos"] = pos
	}
	return payload, nil
}

func mutationPayload(ed *editor.Editor, changed bool) map[string]any {
	return map[string]any{
		"changed": changed,
		"rev":     ed.Rev(),
		"doc":     ed.Doc(),
	}
}

// persistSlot persists the slot's editor, and on failure drops it so
// the next access reloads from the git head. The in-memory revision has
// already advanced past what storage holds; serving it would hand out
// positions no persisted document can satisfy. Callers hold slot.mu.
func (s *Service) persistSlot(ctx context.Context, reportID string, slot *editorSlot, session Session, message string) error {
	if err := s.persist(ctx, reportID, slot.ed, session, message); err != nil {
		slot.ed = nil
		return err
	}
	return nil
}

// persist writes a committed editor state through to git, Postgres and
// the search index.
func (s *Service) persist(ctx context.Context, reportID string, ed *editor.Editor, session Session, message string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ed.Doc())
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := s.repo.CommitContent(reportID, docrepo.Content{Title: report.Title, Doc: raw}, session.UserName, message); err != nil {
		return fmt.Errorf("commit content: %w", err)
	}
	if err := s.store.TouchReport(ctx, reportID, int64(ed.Rev()), session.UserID); err != nil {
		return fmt.Errorf("touch report: %w", err)
	}
	report.Rev = int64(ed.Rev())
	s.indexReport(report, ed.Doc())
	return nil
}

// --- export ---

// GetReportDocument implements export.ContentSource.
func (s *Service) GetReportDocument(ctx context.Context, reportID, version string) (export.Document, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return export.Document{}, err
	}

	var content docrepo.Content
	var info store.CommitInfo
	if version == "" || version == "latest" {
		content, info, err = s.repo.GetHeadContent(reportID)
	} else {
		content, err = s.repo.GetContentByHash(reportID, version)
		info = store.CommitInfo{CreatedAt: report.UpdatedAt}
	}
	if err != nil {
		return export.Document{}, fmt.Errorf("%w: %v", export.ErrContentUnavailable, err)
	}

	html, err := export.RenderDocHTML(s.views, content.Doc)
	if err != nil {
		return export.Document{}, err
	}
	author := info.Author
	if author == "" {
		author = report.UpdatedBy
	}
	return export.Document{
		ID:        report.ID,
		Title:     report.Title,
		HTML:      html,
		Author:    author,
		UpdatedAt: info.CreatedAt,
	}, nil
}

// Export renders a report to the requested format.
func (s *Service) Export(ctx context.Context, session Session, req export.Request) (*export.Result, error) {
	if err := s.authorize(session, rbac.ActionExport); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, req)
}

// --- block assets ---

func (s *Service) UploadAsset(ctx context.Context, session Session, reportID, mimeType string, size int64, body io.Reader) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionEdit); err != nil {
		return nil, err
	}
	if s.assets == nil {
		return nil, domainError(503, "ASSETS_UNAVAILABLE", "Object storage not configured", nil)
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}

	assetID := util.NewID("ast")
	key, err := s.assets.Upload(ctx, reportID, assetID, mimeType, size, body)
	if err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}
	asset := store.BlockAsset{
		ID:         assetID,
		ReportID:   reportID,
		ObjectKey:  key,
		MimeType:   mimeType,
		SizeBytes:  size,
		UploadedBy: session.UserID,
	}
	if err := s.store.CreateBlockAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("record asset: %w", err)
	}
	return map[string]any{"id": assetID, "objectKey": key}, nil
}

func (s *Service) AssetURL(ctx context.Context, session Session, assetID string) (map[string]any, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.assets == nil {
		return nil, domainError(503, "ASSETS_UNAVAILABLE", "Object storage not configured", nil)
	}
	asset, err := s.store.GetBlockAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	url, err := s.assets.PresignGet(ctx, asset.ObjectKey, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("presign asset: %w", err)
	}
	return map[string]any{"id": asset.ID, "url": url, "mimeType": asset.MimeType}, nil
}

// SearchFallback adapts the store's title search to the search
// service's fallback interface.
type SearchFallback struct {
	Store Store
}

func (f SearchFallback) SearchReportTitles(ctx context.Context, text string, limit int) ([]search.Result, error) {
	reports, err := f.Store.SearchReports(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(reports))
	for _, r := range reports {
		results = append(results, search.Result{ID: r.ID, Title: r.Title, Status: r.Status})
	}
	return results, nil
}
