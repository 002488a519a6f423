package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/tracer"
)

// FetchContentTool fetches a webpage and returns its main readable text.
type FetchContentTool struct {
	extractor domain.ContentExtractor
	logger    *slog.Logger
}

// NewFetchContentTool creates the fetch_content tool backed by extractor.
func NewFetchContentTool(extractor domain.ContentExtractor, logger *slog.Logger) *FetchContentTool {
	return &FetchContentTool{extractor: extractor, logger: logger}
}

func (t *FetchContentTool) Name() string { return "fetch_content" }
func (t *FetchContentTool) Description() string {
	return "Fetch and parse the content of a webpage. Extracts the main text content from HTML, removing scripts, styles, " +
		"and navigation elements. Useful for reading full articles or pages found via search."
}

func (t *FetchContentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The URL of the webpage to fetch and parse"}
			},
			"required": ["url"]
		}`),
	}
}

type fetchContentParams struct {
	URL *string `json:"url"`
}

func (t *FetchContentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fetch_content", t.logger, params,
		func(ctx context.Context, span trace.Span, p fetchContentParams) (any, error) {
			if p.URL == nil {
				return nil, domain.MissingParameter("url")
			}
			span.SetAttributes(tracer.StringAttr("content.url", *p.URL))

			page, err := t.extractor.Extract(ctx, *p.URL)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(
				tracer.IntAttr("http.status_code", page.StatusCode),
				tracer.BoolAttr("content.truncated", page.Truncated),
			)
			return page.Text, nil
		},
	)
}
