package app

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bagofwords1/bagofwords-sub004/internal/auth"
	"github.com/bagofwords1/bagofwords-sub004/internal/doctree"
	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
	"github.com/bagofwords1/bagofwords-sub004/internal/export"
	"github.com/bagofwords1/bagofwords-sub004/internal/search"
	"github.com/bagofwords1/bagofwords-sub004/internal/util"
)

// HTTPServer routes API requests to the service.
type HTTPServer struct {
	svc        *Service
	corsOrigin string
}

func NewHTTPServer(svc *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{svc: svc, corsOrigin: corsOrigin}
}

func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", h.route)
	return h.middleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = util.NewID("")[:12]
		}
		w.Header().Set("X-Request-Id", requestID)
		h.setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Printf(`{"requestId":%q,"method":%q,"path":%q,"status":%d,"durationMs":%d}`,
			requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
	})
}

func (h *HTTPServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
}

func (h *HTTPServer) route(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))
	if len(parts) == 0 {
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
		return
	}

	switch parts[0] {
	case "health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "ready":
		h.handleReady(w, r)
	case "session":
		h.routeSession(w, r, parts[1:])
	case "reports":
		h.routeReports(w, r, parts[1:])
	case "search":
		h.handleSearch(w, r)
	case "assets":
		h.routeAssets(w, r, parts[1:])
	default:
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
	}
}

func (h *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeError(w, domainError(503, "NOT_READY", "Database unavailable", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HTTPServer) routeSession(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
			return
		}
		session, err := h.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":   session.UserID,
			"userName": session.UserName,
			"role":     session.Role,
		})
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}

	switch parts[0] {
	case "login":
		var body struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		session, err := h.svc.Login(r.Context(), body.Name, body.Password)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
	case "refresh":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		session, err := h.svc.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
	case "logout":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := h.svc.Logout(r.Context(), body.RefreshToken); err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
	}
}

func sessionPayload(s Session) map[string]any {
	return map[string]any{
		"userId":       s.UserID,
		"userName":     s.UserName,
		"role":         s.Role,
		"token":        s.Token,
		"refreshToken": s.RefreshToken,
		"expiresAt":    s.ExpiresAt,
	}
}

func (h *HTTPServer) routeReports(w http.ResponseWriter, r *http.Request, parts []string) {
	session, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()

	// /api/reports
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := h.svc.ListReports(ctx, session)
			if err != nil {
				writeError(w, mapError(err))
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"reports": items})
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, err)
				return
			}
			payload, err := h.svc.CreateReport(ctx, session, body.Title)
			if err != nil {
				writeError(w, mapError(err))
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		}
		return
	}

	reportID := parts[0]

	// /api/reports/{id}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			payload, err := h.svc.GetReport(ctx, session, reportID)
			if err != nil {
				writeError(w, mapError(err))
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, err)
				return
			}
			payload, err := h.svc.RenameReport(ctx, session, reportID, body.Title)
			if err != nil {
				writeError(w, mapError(err))
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := h.svc.DeleteReport(ctx, session, reportID); err != nil {
				writeError(w, mapError(err))
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		}
		return
	}

	switch parts[1] {
	case "blocks":
		h.routeBlocks(w, r, session, reportID, parts[2:])
	case "content":
		h.handleContent(w, r, session, reportID)
	case "ancestor":
		h.handleAncestor(w, r, session, reportID)
	case "history":
		h.handleHistory(w, r, session, reportID)
	case "export":
		h.handleExport(w, r, session, reportID)
	case "assets":
		h.handleAssetUpload(w, r, session, reportID)
	default:
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
	}
}

func (h *HTTPServer) routeBlocks(w http.ResponseWriter, r *http.Request, session Session, reportID string, parts []string) {
	if r.Method != http.MethodPost {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	ctx := r.Context()

	// POST /api/reports/{id}/blocks inserts a block.
	if len(parts) == 0 {
		var req InsertBlockRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		payload, err := h.svc.InsertBlock(ctx, session, reportID, req)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	switch parts[0] {
	case "move":
		var req MoveBlockRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		payload, err := h.svc.MoveBlock(ctx, session, reportID, req)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "resize":
		var req ResizeBlockRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		payload, err := h.svc.ResizeBlock(ctx, session, reportID, req)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "delete":
		var req DeleteRangeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		payload, err := h.svc.DeleteRange(ctx, session, reportID, req)
		if err != nil {
			writeError(w, mapError(err))
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
	}
}

func (h *HTTPServer) handleContent(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if r.Method != http.MethodPost {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	var body struct {
		Doc json.RawMessage `json:"doc"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	payload, err := h.svc.ReplaceContent(r.Context(), session, reportID, body.Doc)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPServer) handleAncestor(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if r.Method != http.MethodPost {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	var req AncestorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payload, err := h.svc.FindAncestor(r.Context(), session, reportID, req)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if r.Method != http.MethodGet {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	limit := queryInt(r, "limit", 50)
	items, err := h.svc.History(r.Context(), session, reportID, limit)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": items})
}

func (h *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if r.Method != http.MethodGet {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatPDF
	}
	if format != export.FormatHTML && format != export.FormatPDF && format != export.FormatDOCX {
		writeError(w, domainError(422, "VALIDATION_ERROR", "format must be html, pdf or docx", nil))
		return
	}
	result, err := h.svc.Export(r.Context(), session, export.Request{
		ReportID: reportID,
		Version:  r.URL.Query().Get("version"),
		Format:   format,
	})
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (h *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	session, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	resp, err := h.svc.Search(r.Context(), session, search.Query{
		Text:   r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPServer) handleAssetUpload(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if r.Method != http.MethodPost {
		writeError(w, domainError(405, "METHOD_NOT_ALLOWED", "Method not allowed", nil))
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	payload, err := h.svc.UploadAsset(r.Context(), session, reportID, mimeType, r.ContentLength, r.Body)
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *HTTPServer) routeAssets(w http.ResponseWriter, r *http.Request, parts []string) {
	session, err := h.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(parts) != 2 || parts[1] != "url" || r.Method != http.MethodGet {
		writeError(w, domainError(404, "NOT_FOUND", "Not found", nil))
		return
	}
	payload, err := h.svc.AssetURL(r.Context(), session, parts[0])
	if err != nil {
		writeError(w, mapError(err))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPServer) authenticate(r *http.Request) (Session, error) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, domainError(401, "UNAUTHORIZED", "Missing bearer token", nil)
	}
	session, err := h.svc.SessionFromToken(r.Context(), token)
	if err != nil {
		return Session{}, mapError(err)
	}
	return session, nil
}

// --- helpers ---

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func decodeBody(r *http.Request, into any) *DomainError {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return domainError(400, "BAD_REQUEST", "Invalid JSON body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var de *DomainError
	if !errors.As(err, &de) {
		de = domainError(500, "INTERNAL", "Internal server error", nil)
	}
	body := map[string]any{"error": map[string]any{"code": de.Code, "message": de.Message}}
	if de.Details != nil {
		body["error"].(map[string]any)["details"] = de.Details
	}
	writeJSON(w, de.Status, body)
}

// mapError translates service and engine errors into DomainErrors.
// Stale revisions and interaction conflicts are 409s the client
// resolves by refetching the document; position and range violations
// are 422s.
func mapError(err error) error {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domainError(404, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return domainError(401, "UNAUTHORIZED", "Invalid or expired token", nil)
	case errors.Is(err, editor.ErrStaleRevision):
		return domainError(409, "STALE_REVISION", "Document changed, refetch and retry", err.Error())
	case errors.Is(err, editor.ErrBusy):
		return domainError(409, "INTERACTION_IN_PROGRESS", "Another interaction is in progress", nil)
	case errors.Is(err, editor.ErrNoDrag), errors.Is(err, editor.ErrNoResize):
		return domainError(409, "NO_INTERACTION", "No interaction in progress", nil)
	case errors.Is(err, doctree.ErrOutOfRange),
		errors.Is(err, doctree.ErrInvalidPosition),
		errors.Is(err, doctree.ErrInvalidRange),
		errors.Is(err, doctree.ErrIndexOutOfBounds):
		return domainError(422, "INVALID_POSITION", "Position or range not valid for this document", err.Error())
	case errors.Is(err, doctree.ErrUnknownType):
		return domainError(422, "UNKNOWN_NODE_TYPE", "Unknown node type", err.Error())
	case errors.Is(err, export.ErrContentUnavailable):
		return domainError(404, "CONTENT_UNAVAILABLE", "Report content unavailable", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return domainError(503, "EXPORT_UNAVAILABLE", "Export renderer not installed", nil)
	}

	log.Printf("app: internal error: %v", err)
	return domainError(500, "INTERNAL", "Internal server error", nil)
}
