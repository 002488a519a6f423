package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch-mcp/internal/adapter/upstream"
	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/config"
)

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// numberedPage renders n results whose URLs are https://example.com/<start+i>.
func numberedPage(start, n int) string {
	blocks := make([]string, n)
	for i := range blocks {
		id := start + i
		blocks[i] = resultBlock(
			fmt.Sprintf("Result %d", id),
			fmt.Sprintf("//duckduckgo.com/l/?uddg=https%%3A%%2F%%2Fexample.com%%2F%d", id),
			fmt.Sprintf("Snippet %d", id),
		)
	}
	return page(blocks...)
}

type fakeUpstream struct {
	mu       sync.Mutex
	posts    int
	gets     []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeUpstream) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts
}

func (f *fakeUpstream) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

// paged serves page 1 on POST and numbered pages on GET by their "s" offset.
// perPage results are returned for every offset below total.
func (f *fakeUpstream) paged(t *testing.T, total, perPage int, override func(s int, w http.ResponseWriter) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			seen := f.maxSeen.Load()
			if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		s := 0
		if r.Method == http.MethodPost {
			f.mu.Lock()
			f.posts++
			f.mu.Unlock()
			assert.NoError(t, r.ParseForm())
			assert.NotEmpty(t, r.PostForm.Get("q"))
		} else {
			q := r.URL.Query()
			s, _ = strconv.Atoi(q.Get("s"))
			assert.Equal(t, strconv.Itoa(s+1), q.Get("dc"))
			f.mu.Lock()
			f.gets = append(f.gets, r.URL.RawQuery)
			f.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}
		if override != nil && override(s, w) {
			return
		}
		n2 := min(perPage, max(0, total-s))
		_, _ = io.WriteString(w, numberedPage(s+1, n2))
	}
}

func newTestEngine(t *testing.T, h http.Handler, tweak func(*config.SearchConfig)) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Defaults().Search
	cfg.Endpoint = srv.URL + "/html/"
	cfg.PageTimeout = 2 * time.Second
	if tweak != nil {
		tweak(&cfg)
	}
	fetcher := upstream.NewHTTPFetcher(config.Defaults().Fetch, newTestLogger())
	limiter := upstream.NewRateLimiter(10000, time.Minute)
	return NewEngine(fetcher, limiter, cfg, newTestLogger())
}

func mustQuery(t *testing.T, text string, limit, offset int) domain.SearchQuery {
	t.Helper()
	q, err := domain.NewSearchQuery(text, limit, offset)
	require.NoError(t, err)
	return q
}

func TestEngineSinglePageSlices(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 5, 5, nil), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "rust programming", 3, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Returned)
	assert.Equal(t, 5, resp.TotalMatched)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "Result 1", resp.Results[0].Title)
	assert.Equal(t, "https://example.com/1", resp.Results[0].URL)
	assert.Equal(t, "Result 3", resp.Results[2].Title)
	assert.Equal(t, 1, up.postCount())
	assert.Zero(t, up.getCount())
}

func TestEngineSinglePageOffset(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 10, 10, nil), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 5, 8))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Returned)
	assert.Equal(t, "Result 9", resp.Results[0].Title)

	resp, err = e.Search(context.Background(), mustQuery(t, "golang", 5, 20))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Returned)
	assert.Equal(t, 10, resp.TotalMatched)
}

func TestEngineSendsForm(t *testing.T) {
	var form map[string][]string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, numberedPage(1, 1))
	})
	e := newTestEngine(t, h, func(c *config.SearchConfig) { c.Region = "us-en" })

	_, err := e.Search(context.Background(), mustQuery(t, "  weather  ", 10, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, form["q"])
	assert.Equal(t, []string{""}, form["b"])
	assert.Equal(t, []string{"us-en"}, form["kl"])
}

func TestEngineChallengeIsEmptySuccess(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><div class="anomaly-modal">bots</div></body></html>`)
	})

	for _, limit := range []int{10, 500} {
		e := newTestEngine(t, h, nil)
		resp, err := e.Search(context.Background(), mustQuery(t, "blocked", limit, 0))
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Returned)
		assert.Equal(t, 0, resp.TotalMatched)
		assert.NotNil(t, resp.Results)
	}
}

func TestEngineFirstPageHTTPError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	e := newTestEngine(t, h, nil)

	_, err := e.Search(context.Background(), mustQuery(t, "golang", 10, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSearch)
	assert.Contains(t, err.Error(), "503")
}

func TestEngineFirstPageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/html/"
	srv.Close()

	cfg := config.Defaults().Search
	cfg.Endpoint = endpoint
	e := NewEngine(upstream.NewHTTPFetcher(config.Defaults().Fetch, newTestLogger()),
		upstream.NewRateLimiter(10, time.Minute), cfg, newTestLogger())

	_, err := e.Search(context.Background(), mustQuery(t, "golang", 80, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSearch)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, domain.CodeSearch, domain.ErrorCodeOf(err))
}

func TestEngineExtendedFansOut(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 1000, 10, nil), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	assert.Equal(t, 60, resp.Returned)
	assert.GreaterOrEqual(t, resp.TotalMatched, 60)
	assert.Equal(t, 1, up.postCount())
	assert.Equal(t, 5, up.getCount())

	urls := make(map[string]bool)
	for _, r := range resp.Results {
		assert.False(t, urls[r.URL], "duplicate %s", r.URL)
		urls[r.URL] = true
	}
	// Page 1 is fetched synchronously and always leads.
	assert.Equal(t, "Result 1", resp.Results[0].Title)
}

func TestEngineExtendedMergesInCompletionOrder(t *testing.T) {
	up := &fakeUpstream{}
	slowSecondPage := func(s int, _ http.ResponseWriter) bool {
		if s == 10 {
			time.Sleep(300 * time.Millisecond)
		}
		return false
	}
	e := newTestEngine(t, up.paged(t, 40, 10, slowSecondPage), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	require.Len(t, resp.Results, 40)

	assert.Equal(t, "Result 10", resp.Results[9].Title)
	assert.NotEqual(t, "Result 11", resp.Results[10].Title, "a faster later page should follow page 1")

	tail := resp.Results[30:]
	for i, r := range tail {
		assert.Equal(t, fmt.Sprintf("Result %d", 11+i), r.Title)
	}
}

func TestEngineExtendedOffsetWindow(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 1000, 10, nil), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 55, 20))
	require.NoError(t, err)
	assert.Equal(t, 55, resp.Returned)
	assert.Equal(t, 20, resp.Offset)
	assert.LessOrEqual(t, up.getCount(), 7) // ceil(75/10)-1
}

func TestEngineExtendedSkipsFailedPages(t *testing.T) {
	up := &fakeUpstream{}
	override := func(s int, w http.ResponseWriter) bool {
		switch s {
		case 20:
			w.WriteHeader(http.StatusInternalServerError)
			return true
		case 30:
			_, _ = io.WriteString(w, `<form id="challenge-form"><input id="challenge-submit"></form>`)
			return true
		}
		return false
	}
	e := newTestEngine(t, up.paged(t, 1000, 10, override), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	assert.Equal(t, 40, resp.Returned)
	assert.Equal(t, 40, resp.TotalMatched)
	for _, r := range resp.Results {
		assert.NotContains(t, []string{"Result 21", "Result 31"}, r.Title)
	}
}

func TestEngineExtendedSkipsSlowPages(t *testing.T) {
	up := &fakeUpstream{}
	release := make(chan struct{})
	defer close(release)
	override := func(s int, w http.ResponseWriter) bool {
		if s == 10 {
			<-release
			return true
		}
		return false
	}
	e := newTestEngine(t, up.paged(t, 1000, 10, override), func(c *config.SearchConfig) {
		c.PageTimeout = 100 * time.Millisecond
	})

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Returned)
}

func TestEngineExtendedEmptyFirstPage(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 0, 10, nil), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "nothing", 200, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Returned)
	assert.Zero(t, up.getCount())
}

func TestEngineExtendedRespectsMaxPages(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 10000, 10, nil), func(c *config.SearchConfig) { c.MaxPages = 3 })

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 500, 0))
	require.NoError(t, err)
	assert.Equal(t, 30, resp.Returned)
	assert.Equal(t, 2, up.getCount())
}

func TestEngineExtendedBoundedParallelism(t *testing.T) {
	up := &fakeUpstream{}
	e := newTestEngine(t, up.paged(t, 1000, 10, nil), func(c *config.SearchConfig) { c.MaxParallelPages = 2 })

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 100, 0))
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Returned)
	assert.LessOrEqual(t, up.maxSeen.Load(), int32(2))
}

func TestEngineExtendedDedupAcrossPages(t *testing.T) {
	up := &fakeUpstream{}
	override := func(s int, w http.ResponseWriter) bool {
		if s == 10 {
			// Repeats page 1.
			_, _ = io.WriteString(w, numberedPage(1, 10))
			return true
		}
		return false
	}
	e := newTestEngine(t, up.paged(t, 30, 10, override), nil)

	resp, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	assert.Equal(t, 20, resp.TotalMatched)
}

func TestEngineUsesSharedLimiter(t *testing.T) {
	up := &fakeUpstream{}
	srv := httptest.NewServer(up.paged(t, 1000, 10, nil))
	defer srv.Close()

	cfg := config.Defaults().Search
	cfg.Endpoint = srv.URL
	limiter := upstream.NewRateLimiter(100, time.Minute)
	e := NewEngine(upstream.NewHTTPFetcher(config.Defaults().Fetch, newTestLogger()), limiter, cfg, newTestLogger())

	_, err := e.Search(context.Background(), mustQuery(t, "golang", 60, 0))
	require.NoError(t, err)
	assert.Equal(t, 6, limiter.Len())
}

func TestEnginePageURL(t *testing.T) {
	e := NewEngine(nil, nil, config.SearchConfig{
		Endpoint:       "https://html.duckduckgo.com/html/",
		Region:         "de-de",
		ResultsPerPage: 10,
	}, newTestLogger())

	got, err := e.pageURL(mustQuery(t, "go lang", 10, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, "https://html.duckduckgo.com/html/?dc=21&kl=de-de&q=go+lang&s=20", got)
}
