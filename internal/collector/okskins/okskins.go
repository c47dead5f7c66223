// Package okskins fetches daily klines and on-sale listings from the
// ok-skins item market API.
package okskins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/newthinker/skinquant/internal/collector"
)

const (
	Name            = "okskins"
	DefaultBaseURL  = "https://sdt-api.ok-skins.com"
	DefaultPlatform = "YOUPIN"

	defaultKlineTimeout  = 15 * time.Second
	defaultOnSaleTimeout = 10 * time.Second
	defaultMaxAttempts   = 3
	defaultBackoff       = time.Second
	defaultRPS           = 10
	defaultBreakerTrips  = 5
)

// Observer receives one call per HTTP attempt.
type Observer interface {
	ObserveFetch(source, endpoint string, err error)
	ObserveRetry(source string)
}

// Client implements collector.Collector against the ok-skins API.
type Client struct {
	baseURL       string
	platform      string
	client        *http.Client
	catalog       *collector.Catalog
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	breakerTrips  uint32
	maxAttempts   int
	backoff       time.Duration
	klineTimeout  time.Duration
	onSaleTimeout time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	observer      Observer
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithConfig applies non-zero fields of cfg.
func WithConfig(cfg collector.Config) Option {
	return func(c *Client) {
		if cfg.BaseURL != "" {
			c.baseURL = cfg.BaseURL
		}
		if cfg.Platform != "" {
			c.platform = cfg.Platform
		}
		if cfg.Timeout > 0 {
			c.klineTimeout = cfg.Timeout
		}
		if cfg.MaxAttempts > 0 {
			c.maxAttempts = cfg.MaxAttempts
		}
		if cfg.RateLimit > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
		}
		if cfg.BreakerTrips > 0 {
			c.breakerTrips = cfg.BreakerTrips
		}
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// WithLimiter overrides request pacing.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithBackoff sets the base retry delay; attempt n waits n × d.
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

// WithClock overrides the time source used for request timestamps.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithSleep overrides how retry delays are waited out.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithObserver reports fetch outcomes, typically to metrics.
func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a client resolving symbols through catalog.
func New(catalog *collector.Catalog, opts ...Option) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		platform:      DefaultPlatform,
		client:        &http.Client{},
		catalog:       catalog,
		limiter:       rate.NewLimiter(defaultRPS, 1),
		breakerTrips:  defaultBreakerTrips,
		maxAttempts:   defaultMaxAttempts,
		backoff:       defaultBackoff,
		klineTimeout:  defaultKlineTimeout,
		onSaleTimeout: defaultOnSaleTimeout,
		now:           time.Now,
		sleep:         sleepContext,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	trips := c.breakerTrips
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    Name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("market circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Name returns the source name.
func (c *Client) Name() string {
	return Name
}

// Catalog returns the symbol catalog.
func (c *Client) Catalog() *collector.Catalog {
	return c.catalog
}

// statusError is a non-200 HTTP response.
type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// isTransient reports failures worth retrying: transport errors and
// 5xx/429 responses. Caller cancellation is never transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// get performs a rate limited GET through the breaker, retrying
// transient failures with linear backoff.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, timeout time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		out, err := c.breaker.Execute(func() (any, error) {
			return c.do(ctx, rawURL, timeout)
		})
		if c.observer != nil {
			c.observer.ObserveFetch(Name, endpoint, err)
		}
		if err == nil {
			return out.([]byte), nil
		}

		lastErr = err
		if !isTransient(err) || attempt == c.maxAttempts || ctx.Err() != nil {
			break
		}

		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn("market request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if c.observer != nil {
			c.observer.ObserveRetry(Name)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
