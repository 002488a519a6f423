package domain

import (
	"context"
	"fmt"
	"strings"
)

// Limits applied when a SearchQuery is constructed.
const (
	MinSearchLimit     = 1
	MaxSearchLimit     = 9999
	DefaultSearchLimit = 10
)

// SearchQuery is an immutable, normalized search request. Build it with
// NewSearchQuery; the zero value is not a valid query.
type SearchQuery struct {
	text   string
	limit  int
	offset int
}

// NewSearchQuery trims text, clamps limit into [MinSearchLimit, MaxSearchLimit]
// and floors offset at zero. Blank text is rejected.
func NewSearchQuery(text string, limit, offset int) (SearchQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SearchQuery{}, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	limit = min(max(limit, MinSearchLimit), MaxSearchLimit)
	offset = max(offset, 0)
	return SearchQuery{text: text, limit: limit, offset: offset}, nil
}

func (q SearchQuery) Text() string { return q.text }
func (q SearchQuery) Limit() int   { return q.limit }
func (q SearchQuery) Offset() int  { return q.offset }

// Window is the exclusive end of the requested slice, offset+limit.
func (q SearchQuery) Window() int { return q.offset + q.limit }

// SearchResult is a single admitted search hit. Title and URL are always non-empty.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResponse is a paginated view over the results discovered for a query.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalMatched int            `json:"total_results"`
	Returned     int            `json:"returned"`
	Offset       int            `json:"offset"`
}

// NewSearchResponse slices all into the window requested by q. TotalMatched
// is the number of results discovered before slicing.
func NewSearchResponse(q SearchQuery, all []SearchResult) *SearchResponse {
	start := min(q.offset, len(all))
	end := min(q.Window(), len(all))
	page := make([]SearchResult, end-start)
	copy(page, all[start:end])
	return &SearchResponse{
		Query:        q.text,
		Results:      page,
		TotalMatched: len(all),
		Returned:     len(page),
		Offset:       q.offset,
	}
}

// ExtractedPage is the readable text recovered from a fetched webpage.
type ExtractedPage struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Text       string `json:"text"`
	Truncated  bool   `json:"truncated"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResponse, error)
}

// ContentExtractor fetches a webpage and extracts its main readable text.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*ExtractedPage, error)
}
