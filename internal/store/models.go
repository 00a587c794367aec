package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Report struct {
	ID        string
	Title     string
	Status    string
	OwnerID   string
	Rev       int64
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommitInfo describes one content revision in a report's history.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

type RefreshSession struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type BlockAsset struct {
	ID         string
	ReportID   string
	ObjectKey  string
	MimeType   string
	SizeBytes  int64
	UploadedBy string
	CreatedAt  time.Time
}
