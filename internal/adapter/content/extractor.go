package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"websearch-mcp/internal/adapter/upstream"
	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/config"
	"websearch-mcp/internal/infra/tracer"
)

// Candidate containers for the main readable content, most specific first.
var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post-content",
	".article-content",
	".entry-content",
	"#content",
	".main-content",
}

// Subtrees that never contribute readable text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Svg:      true,
	atom.Noscript: true,
}

// strategy returns the text of one candidate region and whether it is
// substantial enough to use.
type strategy func(doc *goquery.Document) (string, bool)

func selectorStrategy(selector string, minChars int) strategy {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		text := visibleText(sel.Nodes...)
		return text, utf8.RuneCountInString(text) > minChars
	}
}

// wholeDocument is the final fallback: the body, or the document root when
// there is no body element.
func wholeDocument(doc *goquery.Document) (string, bool) {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return visibleText(doc.Selection.Nodes...), true
	}
	return visibleText(body.Nodes...), true
}

// Extractor fetches webpages and extracts their main readable text.
type Extractor struct {
	fetcher    upstream.Fetcher
	limiter    *upstream.RateLimiter
	strategies []strategy
	maxChars   int
	logger     *slog.Logger
}

// NewExtractor creates an extractor sharing limiter with the search engine.
func NewExtractor(fetcher upstream.Fetcher, limiter *upstream.RateLimiter, cfg config.FetchConfig, logger *slog.Logger) *Extractor {
	strategies := make([]strategy, 0, len(contentSelectors)+1)
	for _, s := range contentSelectors {
		strategies = append(strategies, selectorStrategy(s, cfg.MinContentChars))
	}
	strategies = append(strategies, wholeDocument)

	return &Extractor{
		fetcher:    fetcher,
		limiter:    limiter,
		strategies: strategies,
		maxChars:   cfg.MaxContentChars,
		logger:     logger,
	}
}

// Extract implements domain.ContentExtractor. A non-2xx response is not an
// error: the page text describes the failed status instead.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*domain.ExtractedPage, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "content.extract")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("content.url", rawURL))

	if err := e.limiter.Acquire(ctx); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewTransportError(rawURL, err)
	}

	page, err := e.fetcher.Fetch(ctx, upstream.Get(rawURL))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("http.status_code", page.StatusCode))

	if !page.OK() {
		e.logger.Debug("content fetch returned error status", "url", rawURL, "status", page.StatusCode)
		tracer.SetOK(span)
		return &domain.ExtractedPage{
			URL:        rawURL,
			StatusCode: page.StatusCode,
			Text:       fmt.Sprintf("HTTP Error: %d - Failed to fetch content from: %s", page.StatusCode, rawURL),
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewTransportError(rawURL, fmt.Errorf("parse html: %w", err))
	}

	text := e.mainText(doc)
	cleaned, truncated := Clean(text, e.maxChars)

	span.SetAttributes(
		tracer.IntAttr("content.chars", utf8.RuneCountInString(cleaned)),
		tracer.BoolAttr("content.truncated", truncated),
	)
	tracer.SetOK(span)

	e.logger.Debug("content extracted", "url", rawURL, "chars", len(cleaned), "truncated", truncated)
	return &domain.ExtractedPage{
		URL:        rawURL,
		StatusCode: page.StatusCode,
		Text:       cleaned,
		Truncated:  truncated,
	}, nil
}

func (e *Extractor) mainText(doc *goquery.Document) string {
	for _, s := range e.strategies {
		if text, ok := s(doc); ok {
			return text
		}
	}
	return ""
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q: %v", domain.ErrInvalidInput, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s), got %q", domain.ErrInvalidInput, rawURL)
	}
	return nil
}

// visibleText joins the trimmed text nodes under roots with single spaces,
// skipping non-content subtrees and one-character fragments.
func visibleText(roots ...*html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); utf8.RuneCountInString(t) > 1 {
				parts = append(parts, t)
			}
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return strings.Join(parts, " ")
}

var _ domain.ContentExtractor = (*Extractor)(nil)
