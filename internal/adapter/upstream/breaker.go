package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"websearch-mcp/internal/domain"
	"websearch-mcp/internal/infra/config"
)

// BreakerFetcher wraps a Fetcher with a circuit breaker. After MaxFailures
// consecutive transport failures the circuit opens and Fetch fails fast
// with a transport error until the open timeout elapses.
type BreakerFetcher struct {
	inner   Fetcher
	breaker *gobreaker.CircuitBreaker[*Page]
	logger  *slog.Logger
}

// NewBreakerFetcher wraps inner with a circuit breaker named name.
func NewBreakerFetcher(inner Fetcher, name string, cfg config.BreakerConfig, logger *slog.Logger) *BreakerFetcher {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker[*Page](gobreaker.Settings{
		Name:        "upstream:" + name,
		MaxRequests: 1, // one probe while half-open
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		// Cancelled leftovers from a fan-out count neither way.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})

	return &BreakerFetcher{inner: inner, breaker: cb, logger: logger}
}

// Fetch implements Fetcher. Calls are routed through the circuit breaker.
func (b *BreakerFetcher) Fetch(ctx context.Context, req Request) (*Page, error) {
	page, err := b.breaker.Execute(func() (*Page, error) {
		return b.inner.Fetch(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Debug("circuit rejected request", "url", req.URL, "state", b.State().String())
			return nil, domain.NewTransportError(req.URL, fmt.Errorf("circuit %q open: %w", b.breaker.Name(), err))
		}
		return nil, err
	}
	return page, nil
}

// State returns the current breaker state for diagnostics.
func (b *BreakerFetcher) State() gobreaker.State {
	return b.breaker.State()
}

var _ Fetcher = (*BreakerFetcher)(nil)
