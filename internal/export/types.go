// Package export renders report documents to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format is the export output format.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request describes one export operation.
type Request struct {
	ReportID string
	Version  string // "latest" or a commit hash
	Format   Format
}

// Document is the report content handed to the renderer.
type Document struct {
	ID        string
	Title     string
	HTML      string // rendered block document body
	Author    string
	UpdatedAt time.Time
}

// Result is the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates report content could not be loaded.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates the headless browser is unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
