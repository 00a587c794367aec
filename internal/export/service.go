package export

import (
	"context"
	"fmt"
	"html/template"

	"github.com/bagofwords1/bagofwords-sub004/internal/editor"
)

// ContentSource loads exportable report content. The app service
// implements it on top of the report store and the content repos.
type ContentSource interface {
	GetReportDocument(ctx context.Context, reportID, version string) (Document, error)
}

// Service renders report exports.
type Service struct {
	source ContentSource
	views  *editor.Registry
}

func NewService(source ContentSource, views *editor.Registry) *Service {
	if views == nil {
		views = editor.DefaultRegistry()
	}
	return &Service{source: source, views: views}
}

// Views exposes the renderer registry so the host can register custom
// block renderers before exporting.
func (s *Service) Views() *editor.Registry { return s.views }

// Export loads the report at the requested version and produces the
// requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.source.GetReportDocument(ctx, req.ReportID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}

	page, err := RenderReportHTML(TemplateData{
		Title:       doc.Title,
		ContentHTML: template.HTML(doc.HTML),
		Author:      doc.Author,
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(page, doc.Title)
	case FormatDOCX:
		return exportDOCX(page, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
