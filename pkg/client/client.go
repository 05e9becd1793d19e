// Package client provides the HTTP page client with rate limiting,
// caching, retry, and classified error handling. Its FetchFunc adapter
// feeds pkg/pager coordinators directly from paged HTTP APIs.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagekit-go/pagekit/pkg/cache"
	"github.com/pagekit-go/pagekit/pkg/classify"
	"github.com/pagekit-go/pagekit/pkg/pager"
	"github.com/pagekit-go/pagekit/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagekit_requests_total",
		Help: "Total requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagekit_request_duration_seconds",
		Help:    "Request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagekit_errors_total",
		Help: "Total request errors by kind",
	}, []string{"kind"})
)

// maxErrorBody bounds how much of an error response body is read for
// validation detail extraction.
const maxErrorBody = 64 << 10

// Client is an HTTP client for paged APIs.
type Client struct {
	httpClient  *http.Client
	cache       *cache.Store
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://dummyjson.com".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Cache is an optional response cache; nil disables caching.
	Cache *cache.Store

	// RateLimiter is an optional request-budget gate; nil disables gating.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new page client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "page-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:       cfg.Cache,
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// RawPage is the raw result of one page request, the input to a
// caller-supplied pager.ParseFunc.
type RawPage struct {
	Body       []byte
	Header     http.Header
	StatusCode int
	FromCache  bool
}

// Do performs an HTTP request with rate limiting, caching, retry, and
// error handling. Responses with status >= 400 are returned as a
// *classify.StatusError after retries, never as a response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: rate limit gate
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRequestBlocked
		}
	}

	// Step 2: cache lookup
	var cachedEntry *cache.Entry
	cacheKey := cache.Key{
		Endpoint: endpoint,
		Query:    req.URL.Query(),
	}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("cache get error")
		}
		cachedEntry = entry
	}

	// Step 3: conditional request when a validator is cached
	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("making conditional request")
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("executing request")

	// Step 4: execute with retry
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.logger, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			kind := classify.Classify(reqErr).Kind
			errorsTotal.WithLabelValues(string(kind)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("request failed")
			return reqErr
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("failed to update rate limit from headers")
			}
		}

		// 304 Not Modified is success, served from cache below.
		if resp.StatusCode == http.StatusNotModified {
			return nil
		}

		if resp.StatusCode >= 400 {
			statusErr := responseToStatusError(resp)
			kind := classify.Classify(statusErr).Kind
			errorsTotal.WithLabelValues(string(kind)).Inc()
			requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("kind", string(kind)).
				Msg("request error")

			return statusErr
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	// Step 5: serve 304 from cache
	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 not modified - using cache")
		requestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()

		if c.cache != nil && cachedEntry != nil {
			if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
				if newExpires, err := http.ParseTime(expiresStr); err == nil {
					if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
						c.logger.Warn().Err(err).Msg("failed to update cache TTL")
					}
				}
			}
			resp.Body.Close()
			cached := cache.EntryToResponse(cachedEntry)
			cached.Header.Set("X-Cache", "HIT")
			return cached, nil
		}

		// 304 without a cached entry cannot be served.
		resp.Body.Close()
		return nil, &classify.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	// Step 6: cache fresh responses
	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to create cache entry")
		} else if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("cached response")
			}
		}
	}

	return resp, nil
}

// responseToStatusError drains an error response into a StatusError,
// keeping enough body for validation detail extraction.
func responseToStatusError(resp *http.Response) *classify.StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return &classify.StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}
}

// Get performs a GET request against an endpoint under the base URL.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetPage fetches one page and returns its raw payload.
func (c *Client) GetPage(ctx context.Context, endpoint string, query url.Values) (*RawPage, error) {
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	return &RawPage{
		Body:       body,
		Header:     resp.Header,
		StatusCode: resp.StatusCode,
		FromCache:  resp.Header.Get("X-Cache") == "HIT",
	}, nil
}

// FetchFunc adapts the client into a pager fetch function. The params
// builder encodes a page key into query parameters, e.g. via
// OffsetParams for skip/limit APIs.
func (c *Client) FetchFunc(endpoint string, params func(pager.PageKey) url.Values) pager.FetchFunc[*RawPage] {
	return func(ctx context.Context, key pager.PageKey) (*RawPage, error) {
		var query url.Values
		if params != nil {
			query = params(key)
		}
		return c.GetPage(ctx, endpoint, query)
	}
}

// OffsetParams returns a params builder for skip/limit style APIs: the
// page key is an integer offset placed in skipParam, with a fixed page
// size in limitParam. A nil key is treated as offset 0.
func OffsetParams(skipParam, limitParam string, limit int) func(pager.PageKey) url.Values {
	return func(key pager.PageKey) url.Values {
		skip := 0
		if n, ok := key.(int); ok {
			skip = n
		}
		return url.Values{
			skipParam:  []string{strconv.Itoa(skip)},
			limitParam: []string{strconv.Itoa(limit)},
		}
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
