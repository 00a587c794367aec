package search

import (
	"context"
	"log"
)

// Fallback answers searches when Meilisearch is down; the Postgres
// store's title ILIKE query implements it.
type Fallback interface {
	SearchReportTitles(ctx context.Context, text string, limit int) ([]Result, error)
}

// Service tries Meilisearch first and falls back to the store.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a search service. meili may be nil when not
// configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search runs a report search against whichever backend is available.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, err := s.fallback.SearchReportTitles(ctx, q.Text, q.Limit)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	results = nonNil(results)
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexReport pushes a report into the index, fire-and-forget.
func (s *Service) IndexReport(rec ReportRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexReport(rec); err != nil {
			log.Printf("search: index report %s: %v", rec.ID, err)
		}
	}()
}

// DeleteReport removes a report from the index, fire-and-forget.
func (s *Service) DeleteReport(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteReport(id); err != nil {
			log.Printf("search: delete report %s: %v", id, err)
		}
	}()
}

// ReindexAll bulk-loads the index, used at bootstrap.
func (s *Service) ReindexAll(records []ReportRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexReports(records); err != nil {
		log.Printf("search: reindex reports: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
