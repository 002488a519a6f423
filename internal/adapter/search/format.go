package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"websearch-mcp/internal/domain"
)

// FormatText renders resp as a numbered listing for a language model.
func FormatText(resp *domain.SearchResponse) string {
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No results found for: %s\n\nThis could be due to rate limiting or no matches. Try rephrasing your search.", resp.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d search results for \"%s\":\n\n", resp.Returned, resp.Query)
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   Summary: %s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}

// FormatJSON renders resp as indented JSON.
func FormatJSON(resp *domain.SearchResponse) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal search response: %w", err)
	}
	return string(data), nil
}
