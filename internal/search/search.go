// Package search indexes reports in Meilisearch with a Postgres ILIKE
// fallback when the index is unreachable.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ReportRecord is the data indexed per report: metadata plus the plain
// text extracted from the block document.
type ReportRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Status string `json:"status"`
}
