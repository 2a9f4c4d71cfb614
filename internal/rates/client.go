// Package rates fetches exchange-rate tables from the configured source and
// caches the last good table per source URL.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"costmanager/internal/cache"
	"costmanager/internal/core"
	"costmanager/internal/metrics"
	"costmanager/internal/resilience"
)

const (
	maxBodyBytes = 1 << 20
	// sources that keep their own breaker state
	maxBreakers = 8
)

// Resolver yields the rates source URL currently in effect.
type Resolver interface {
	Resolve(ctx context.Context) string
}

// Config tunes network behaviour. Zero values mean no timeout, a single
// attempt and no cache expiry.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	CacheTTL     time.Duration
}

// Client fetches rate tables. The cache holds one table and is keyed by the
// URL it was fetched from, so a changed source never gets a stale table.
// Circuit breakers are kept per URL for the same reason.
type Client struct {
	resolver   Resolver
	httpClient *http.Client
	cache      *cache.LRUCache[core.RatesTable]
	group      singleflight.Group
	retry      resilience.Config
	metrics    *metrics.Metrics
	generation atomic.Uint64

	breakersMu sync.Mutex
	breakers   *cache.LRUCache[*gobreaker.CircuitBreaker]
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Config.Timeout is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(resolver Resolver, cfg Config, opts ...Option) *Client {
	c := &Client{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.NewLRUCache[core.RatesTable](1, cfg.CacheTTL),
		breakers:   cache.NewLRUCache[*gobreaker.CircuitBreaker](maxBreakers, 0),
		retry: resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.RetryBackoff,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache exposes the underlying cache for periodic expiry cleanup.
func (c *Client) Cache() *cache.LRUCache[core.RatesTable] {
	return c.cache
}

// Fetch returns the table for the resolved source, from cache when the
// cached table was fetched from that same URL. Concurrent misses for one URL
// share a single download.
func (c *Client) Fetch(ctx context.Context) (core.RatesTable, error) {
	url := c.resolver.Resolve(ctx)

	if table, ok := c.cache.Get(url); ok {
		c.metrics.IncrRatesCacheHit()
		return table.Clone(), nil
	}
	c.metrics.IncrRatesCacheMiss()

	gen := c.generation.Load()
	ch := c.group.DoChan(url, func() (any, error) {
		// Shared by every waiter, so it must outlive any single caller.
		table, err := c.fetchGuarded(context.WithoutCancel(ctx), url)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.cache.Set(url, table)
		}
		return table, nil
	})

	select {
	case <-ctx.Done():
		return nil, core.NewRatesFetchError("rates fetch cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(core.RatesTable).Clone(), nil
	}
}

// FetchFrom downloads and validates the table at url without touching the
// cache or the circuit breaker. Used to check a candidate source.
func (c *Client) FetchFrom(ctx context.Context, url string) (core.RatesTable, error) {
	table, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, c.fetchError(url, err)
	}
	return table, nil
}

// ClearCache drops the cached table. Downloads already in flight will not
// repopulate it.
func (c *Client) ClearCache() {
	c.generation.Add(1)
	c.cache.Clear()
	slog.Debug("Rates cache cleared")
}

// breakerFor returns the breaker guarding url, creating it on first use.
func (c *Client) breakerFor(url string) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if cb, ok := c.breakers.Get(url); ok {
		return cb
	}
	cb := resilience.NewCircuitBreakerFor("rates "+url, sourceResponded)
	c.breakers.Set(url, cb)
	return cb
}

// sourceResponded reports errors where the source answered with a client
// error or an unusable table. Those point at the configuration, not at an
// unavailable source, and do not count towards opening the breaker.
func sourceResponded(err error) bool {
	if err == nil {
		return true
	}
	var (
		serr *statusError
		derr *decodeError
	)
	if errors.As(err, &serr) {
		return serr.code >= 400 && serr.code < 500
	}
	return errors.As(err, &derr)
}

func (c *Client) fetchGuarded(ctx context.Context, url string) (core.RatesTable, error) {
	result, err := c.breakerFor(url).Execute(func() (any, error) {
		return c.fetchWithRetry(ctx, url)
	})
	if err != nil {
		return nil, c.fetchError(url, err)
	}
	return result.(core.RatesTable), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, url string) (core.RatesTable, error) {
	var table core.RatesTable
	err := resilience.RetryWithBackoff(ctx, c.retry, func() error {
		t, err := c.download(ctx, url)
		if err != nil {
			return err
		}
		table = t
		return nil
	})
	return table, err
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) download(ctx context.Context, url string) (core.RatesTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		serr := &statusError{code: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, resilience.Permanent(serr)
		}
		return nil, serr
	}

	table, err := ParseTable(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.Permanent(&decodeError{err: err})
	}
	return table, nil
}

func (c *Client) fetchError(url string, err error) error {
	var (
		serr *statusError
		derr *decodeError
	)
	reason := "network"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "circuit_open"
	case errors.As(err, &serr):
		reason = "status"
	case errors.As(err, &derr):
		reason = "decode"
	}
	c.metrics.IncrRatesFetchError(reason)
	slog.Warn("Rates fetch failed", "url", url, "reason", reason, "error", err)
	return core.NewRatesFetchError(fmt.Sprintf("failed to fetch exchange rates from %s", url), err)
}

// ParseTable decodes a flat currency to multiplier JSON object and validates it.
func ParseTable(r io.Reader) (core.RatesTable, error) {
	var table core.RatesTable
	if err := json.NewDecoder(r).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
