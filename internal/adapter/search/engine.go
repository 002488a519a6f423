package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"websearch-mcp/internal/adapter/upstream"
	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/config"
	"websearch-mcp/internal/infra/tracer"
)

// Engine retrieves search results from the HTML results endpoint. Requests
// up to SinglePageThreshold results use one POST; larger requests fan out
// over additional pages with bounded parallelism.
type Engine struct {
	fetcher upstream.Fetcher
	limiter *upstream.RateLimiter
	cfg     config.SearchConfig
	logger  *slog.Logger

	// Throttles page-failure warnings during large fan-outs.
	warnPageFailure rate.Sometimes
}

// NewEngine creates a search engine. The limiter is shared with every other
// component that talks to the network.
func NewEngine(fetcher upstream.Fetcher, limiter *upstream.RateLimiter, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher:         fetcher,
		limiter:         limiter,
		cfg:             cfg,
		logger:          logger,
		warnPageFailure: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Search implements domain.Searcher. A challenge page is a zero-result
// success. Only first-page failures are returned; later pages are best effort.
func (e *Engine) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResponse, error) {
	extended := q.Limit() > e.cfg.SinglePageThreshold

	ctx, span := tracer.StartSpan(ctx, "search.engine")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("search.query", q.Text()),
		tracer.IntAttr("search.limit", q.Limit()),
		tracer.IntAttr("search.offset", q.Offset()),
		tracer.BoolAttr("search.extended", extended),
	)

	var (
		all []domain.SearchResult
		err error
	)
	if extended {
		all, err = e.searchExtended(ctx, q)
	} else {
		all, _, err = e.firstPage(ctx, q)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp := domain.NewSearchResponse(q, all)
	span.SetAttributes(
		tracer.IntAttr("search.total", resp.TotalMatched),
		tracer.IntAttr("search.returned", resp.Returned),
	)
	tracer.SetOK(span)

	e.logger.Debug("search completed",
		"query", q.Text(),
		"total", resp.TotalMatched,
		"returned", resp.Returned,
		"extended", extended,
		"rate_window_used", e.limiter.Len(),
	)
	return resp, nil
}

// firstPage POSTs the query form. The boolean reports a challenge page.
func (e *Engine) firstPage(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, bool, error) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, false, searchError(q, err)
	}

	form := url.Values{
		"q":  {q.Text()},
		"b":  {""},
		"kl": {e.cfg.Region},
	}
	page, err := e.fetcher.Fetch(ctx, upstream.PostForm(e.cfg.Endpoint, form))
	if err != nil {
		return nil, false, searchError(q, err)
	}
	if !page.OK() {
		return nil, false, searchError(q, fmt.Errorf("HTTP %d from %s", page.StatusCode, e.cfg.Endpoint))
	}
	if IsChallenge(page.Body) {
		e.logger.Warn("search challenge page, returning no results",
			"query", q.Text(),
			"error", domain.ErrChallenge,
		)
		return nil, true, nil
	}
	return Parse(page.Body), false, nil
}

type pageResult struct {
	page    int
	results []domain.SearchResult
	err     error
}

func (e *Engine) searchExtended(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	all, challenged, err := e.firstPage(ctx, q)
	if err != nil {
		return nil, err
	}
	window := q.Window()
	if challenged || len(all) == 0 || len(all) >= window {
		return all, nil
	}

	perPage := e.cfg.ResultsPerPage
	pagesNeeded := min((window+perPage-1)/perPage, e.cfg.MaxPages)
	if pagesNeeded < 2 {
		return all, nil
	}

	seen := make(map[string]struct{}, len(all))
	for _, r := range all {
		seen[r.URL] = struct{}{}
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := pagesNeeded - 1
	done := make(chan pageResult, tasks)
	launched := make(chan struct{})

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxParallelPages)
	go func() {
		defer close(launched)
		for p := 2; p <= pagesNeeded; p++ {
			if fanCtx.Err() != nil {
				return
			}
			g.Go(func() error {
				done <- e.fetchPage(fanCtx, q, p)
				return nil
			})
		}
	}()

	// Results are merged in completion order, not page order.
collect:
	for received := 0; received < tasks; received++ {
		var pr pageResult
		select {
		case pr = <-done:
		case <-ctx.Done():
			break collect
		}

		if pr.err != nil {
			e.logger.Debug("search page skipped", "query", q.Text(), "page", pr.page, "error", pr.err)
			e.warnPageFailure.Do(func() {
				e.logger.Warn("search pages failing, continuing with partial results",
					"query", q.Text(),
					"page", pr.page,
					"error", pr.err,
				)
			})
			continue
		}

		for _, r := range pr.results {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			all = append(all, r)
		}
		if len(all) >= window {
			break
		}
	}

	cancel()
	<-launched
	_ = g.Wait()
	return all, nil
}

// fetchPage retrieves one secondary page. The page timeout covers the
// limiter wait as well as the request.
func (e *Engine) fetchPage(ctx context.Context, q domain.SearchQuery, page int) pageResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "search.page")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("search.page", page))

	fail := func(err error) pageResult {
		tracer.RecordError(span, err)
		return pageResult{page: page, err: err}
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		return fail(err)
	}

	target, err := e.pageURL(q, page)
	if err != nil {
		return fail(err)
	}
	resp, err := e.fetcher.Fetch(ctx, upstream.Get(target))
	if err != nil {
		return fail(err)
	}
	if !resp.OK() {
		return fail(fmt.Errorf("HTTP %d from %s", resp.StatusCode, target))
	}
	if IsChallenge(resp.Body) {
		return fail(fmt.Errorf("page %d: %w", page, domain.ErrChallenge))
	}

	results := Parse(resp.Body)
	span.SetAttributes(tracer.IntAttr("search.page_results", len(results)))
	tracer.SetOK(span)
	return pageResult{page: page, results: results}
}

// pageURL builds the GET URL for a 1-based page number.
func (e *Engine) pageURL(q domain.SearchQuery, page int) (string, error) {
	u, err := url.Parse(e.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	start := (page - 1) * e.cfg.ResultsPerPage
	vals := u.Query()
	vals.Set("q", q.Text())
	vals.Set("kl", e.cfg.Region)
	vals.Set("s", strconv.Itoa(start))
	vals.Set("dc", strconv.Itoa(start+1))
	u.RawQuery = vals.Encode()
	return u.String(), nil
}

func searchError(q domain.SearchQuery, cause error) error {
	return domain.NewDomainError("Engine.Search", fmt.Errorf("%w: %w", domain.ErrSearch, cause), q.Text())
}

var _ domain.Searcher = (*Engine)(nil)
