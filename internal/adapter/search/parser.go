package search

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"websearch-mcp/internal/domain"
)

// Selectors and markers of the HTML results page.
const (
	containerSelector = ".web-result, .result"
	titleSelector     = ".result__a"
	snippetSelector   = ".result__snippet"

	adMarker       = "y.js"
	redirectParam  = "uddg"
	redirectMarker = redirectParam + "="
)

var challengeMarkers = []string{"anomaly-modal", "challenge-submit"}

// IsChallenge reports whether body is a bot-challenge page instead of results.
func IsChallenge(body string) bool {
	for _, m := range challengeMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// Parse extracts search results from a results page in document order.
// Sponsored entries, entries without a title or resolvable URL, and
// repeated URLs are dropped. Malformed HTML yields fewer results, never an error.
func Parse(body string) []domain.SearchResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var results []domain.SearchResult
	seen := make(map[string]struct{})

	doc.Find(containerSelector).Each(func(_ int, s *goquery.Selection) {
		// A .result nested in a .web-result is the same entry.
		if s.ParentsFiltered(containerSelector).Length() > 0 {
			return
		}

		link := s.Find(titleSelector).First()
		href, ok := link.Attr("href")
		if !ok || strings.Contains(href, adMarker) {
			return
		}

		title := strings.TrimSpace(link.Text())
		target := ResolveURL(href)
		if title == "" || target == "" {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}

		results = append(results, domain.SearchResult{
			Title:   title,
			URL:     target,
			Snippet: strings.TrimSpace(s.Find(snippetSelector).First().Text()),
		})
	})

	return results
}

// ResolveURL turns a result href into an absolute destination URL. Redirect
// links yield their decoded uddg target, protocol-relative links get https,
// absolute http(s) links pass through. Anything else resolves to "".
func ResolveURL(href string) string {
	href = strings.TrimSpace(href)

	if strings.Contains(href, redirectMarker) {
		return redirectTarget(href)
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return ""
}

func redirectTarget(href string) string {
	raw := href
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	// ParseQuery keeps the well-formed pairs even when it reports an error.
	vals, _ := url.ParseQuery(raw)
	if v := vals.Get(redirectParam); v != "" {
		return v
	}

	_, after, _ := strings.Cut(href, redirectMarker)
	if end := strings.IndexByte(after, '&'); end >= 0 {
		after = after[:end]
	}
	decoded, err := url.QueryUnescape(after)
	if err != nil {
		return ""
	}
	return decoded
}
