package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"websearch-mcp/internal/adapter/search"
	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/tracer"
)

// Output formats accepted by web_search.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WebSearchTool runs a web search and renders the results for a language model.
type WebSearchTool struct {
	searcher domain.Searcher
	logger   *slog.Logger
}

// NewWebSearchTool creates the web_search tool backed by searcher.
func NewWebSearchTool(searcher domain.Searcher, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{searcher: searcher, logger: logger}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web using DuckDuckGo. Returns formatted results with title, URL, and summary in natural language. " +
		"Requests are rate limited to avoid blocking."
}

// The limit bounds are enforced by clamping, not by the schema.
func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query string"},
				"limit": {"type": "integer", "description": "Number of results to return (1-9999, default: 10). Values above 50 fetch additional result pages."},
				"offset": {"type": "integer", "description": "Pagination offset (default: 0)"},
				"format": {"type": "string", "enum": ["text", "json"], "description": "Output format (default: text)"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query  *string `json:"query"`
	Limit  *int    `json:"limit,omitempty"`
	Offset *int    `json:"offset,omitempty"`
	Format string  `json:"format,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			if p.Query == nil {
				return nil, domain.MissingParameter("query")
			}

			limit := domain.DefaultSearchLimit
			if p.Limit != nil {
				limit = *p.Limit
			}
			offset := 0
			if p.Offset != nil {
				offset = *p.Offset
			}

			q, err := domain.NewSearchQuery(*p.Query, limit, offset)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.StringAttr("search.query", q.Text()),
				tracer.IntAttr("search.limit", q.Limit()),
				tracer.IntAttr("search.offset", q.Offset()),
			)

			resp, err := t.searcher.Search(ctx, q)
			if err != nil {
				return nil, err
			}

			t.logger.Info("web search served",
				"call_id", domain.CallIDFromContext(ctx),
				"query", q.Text(),
				"returned", resp.Returned,
				"total", resp.TotalMatched,
			)

			switch p.Format {
			case "", FormatText:
				return search.FormatText(resp), nil
			case FormatJSON:
				return search.FormatJSON(resp)
			default:
				return nil, fmt.Errorf("%w: unknown format %q (want: text, json)", domain.ErrInvalidParams, p.Format)
			}
		},
	)
}
