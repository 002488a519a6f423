package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/config"
	"websearch-mcp/internal/security"
)

// Browser-like headers sent with every request.
const (
	headerAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	headerAcceptLanguage = "en-US,en;q=0.9"
)

// Request describes a single outbound page request. A non-nil Form is sent
// as an application/x-www-form-urlencoded POST body.
type Request struct {
	Method string
	URL    string
	Form   url.Values
}

// Get builds a GET request for rawURL.
func Get(rawURL string) Request {
	return Request{Method: http.MethodGet, URL: rawURL}
}

// PostForm builds a form POST request for rawURL.
func PostForm(rawURL string, form url.Values) Request {
	return Request{Method: http.MethodPost, URL: rawURL, Form: form}
}

// Page is a fetched response body decoded to UTF-8.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        string
}

// OK reports whether the status code is 2xx.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetcher performs exactly one HTTP exchange per call. Non-2xx statuses are
// returned as pages, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// HTTPFetcher is the net/http implementation of Fetcher.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPFetcher creates a fetcher with a pooled transport and a hard
// per-request timeout taken from cfg.
func NewHTTPFetcher(cfg config.FetchConfig, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: newTransport(cfg.Timeout, cfg.BlockPrivateAddresses),
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodyBytes,
		logger:      logger,
	}
}

func newTransport(timeout time.Duration, blockPrivate bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	proxy := http.ProxyFromEnvironment
	if blockPrivate {
		dialer.Control = security.DialControl
		// Proxied connections would escape the dial check.
		proxy = nil
	}
	return &http.Transport{
		Proxy:               proxy,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (*Page, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, domain.NewTransportError(r.URL, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Accept-Language", headerAcceptLanguage)
	req.Header.Set("DNT", "1")
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	f.logger.Debug("upstream request", "method", method, "url", r.URL)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.NewTransportError(r.URL, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !isTextual(contentType) {
		if ok {
			return nil, domain.NewTransportError(r.URL, fmt.Errorf("unsupported content type %q", contentType))
		}
		// Error pages keep their status; the binary body is dropped.
		f.logger.Debug("upstream error status with non-text body", "url", r.URL, "status", resp.StatusCode, "content_type", contentType)
		return &Page{URL: r.URL, StatusCode: resp.StatusCode, ContentType: contentType}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, domain.NewTransportError(r.URL, fmt.Errorf("read body: %w", err))
	}
	text, err := decodeBody(raw, contentType)
	if err != nil {
		return nil, domain.NewTransportError(r.URL, fmt.Errorf("decode body: %w", err))
	}

	f.logger.Debug("upstream response",
		"url", r.URL,
		"status", resp.StatusCode,
		"content_type", contentType,
		"size", len(raw),
	)

	return &Page{
		URL:         r.URL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        text,
	}, nil
}

// isTextual accepts text/*, HTML, XML and JSON payloads. A missing
// Content-Type is treated as text and left to charset sniffing.
func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+xml"), mediaType == "application/xml":
		return true
	case mediaType == "application/json":
		return true
	}
	return false
}

func decodeBody(raw []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
