package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Postgres is the relational store for users, reports and sessions.
// Report content itself lives in per-report git repositories; this
// layer keeps the queryable metadata in sync.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// --- users ---

func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (p *Postgres) GetUserByName(ctx context.Context, name string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at, updated_at
		FROM users WHERE display_name = $1
	`, name)
	return scanUser(row)
}

// HasCredentialedUser reports whether any user can sign in with a
// password. Seeded system users carry an empty hash and do not count.
func (p *Postgres) HasCredentialedUser(ctx context.Context) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE password_hash <> '')
	`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check credentialed users: %w", err)
	}
	return exists, nil
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// --- reports ---

func (p *Postgres) CreateReport(ctx context.Context, r Report) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reports (id, title, status, owner_id, rev, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Title, r.Status, r.OwnerID, r.Rev, r.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (p *Postgres) GetReport(ctx context.Context, id string) (Report, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, title, status, owner_id, rev, updated_by, created_at, updated_at
		FROM reports WHERE id = $1
	`, id)
	var r Report
	err := row.Scan(&r.ID, &r.Title, &r.Status, &r.OwnerID, &r.Rev, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Report{}, err
	}
	return r, nil
}

func (p *Postgres) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, status, owner_id, rev, updated_by, created_at, updated_at
		FROM reports ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var items []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.OwnerID, &r.Rev, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// TouchReport records a committed content change: the revision the
// editor reached and who made it.
func (p *Postgres) TouchReport(ctx context.Context, id string, rev int64, updatedBy string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE reports SET rev = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1
	`, id, rev, updatedBy)
	if err != nil {
		return fmt.Errorf("touch report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch report rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (p *Postgres) RenameReport(ctx context.Context, id, title, updatedBy string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE reports SET title = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1
	`, id, title, updatedBy)
	if err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename report rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (p *Postgres) DeleteReport(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// SearchReports is the ILIKE fallback used when the search index is
// unavailable.
func (p *Postgres) SearchReports(ctx context.Context, text string, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ReplaceAll(strings.ReplaceAll(text, "%", `\%`), "_", `\_`) + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, status, owner_id, rev, updated_by, created_at, updated_at
		FROM reports WHERE title ILIKE $1
		ORDER BY updated_at DESC LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	defer rows.Close()

	var items []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.OwnerID, &r.Rev, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// --- refresh sessions (Postgres fallback when Redis is down) ---

func (p *Postgres) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = $2, expires_at = $3
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (p *Postgres) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role, u.created_at, u.updated_at
		FROM refresh_sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func (p *Postgres) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// --- block assets ---

func (p *Postgres) CreateBlockAsset(ctx context.Context, a BlockAsset) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO block_assets (id, report_id, object_key, mime_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ReportID, a.ObjectKey, a.MimeType, a.SizeBytes, a.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert block asset: %w", err)
	}
	return nil
}

func (p *Postgres) GetBlockAsset(ctx context.Context, id string) (BlockAsset, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, report_id, object_key, mime_type, size_bytes, uploaded_by, created_at
		FROM block_assets WHERE id = $1
	`, id)
	var a BlockAsset
	err := row.Scan(&a.ID, &a.ReportID, &a.ObjectKey, &a.MimeType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return BlockAsset{}, err
	}
	return a, nil
}

func (p *Postgres) ListBlockAssets(ctx context.Context, reportID string) ([]BlockAsset, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, report_id, object_key, mime_type, size_bytes, uploaded_by, created_at
		FROM block_assets WHERE report_id = $1 ORDER BY created_at DESC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list block assets: %w", err)
	}
	defer rows.Close()

	var items []BlockAsset
	for rows.Next() {
		var a BlockAsset
		if err := rows.Scan(&a.ID, &a.ReportID, &a.ObjectKey, &a.MimeType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block asset: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
