// Package bgg provides the BoardGameGeek XML API 2 client with retry
// logic, optional response caching, and error classification.
package bgg

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public XML API 2 root.
const DefaultBaseURL = "https://boardgamegeek.com/xmlapi2"

// thingFlags are the fixed per-call inclusion flags: statistics on,
// ancillary data the pipeline does not use off.
const thingFlags = "stats=1&videos=0&marketplace=0&comments=0&ratingcomments=0"

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_requests_total",
		Help: "Total thing requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bgg_request_duration_seconds",
		Help:    "Thing request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})
)

// Client fetches raw catalog items from the thing endpoint.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the XML API (DefaultBaseURL when empty)
	BaseURL string

	// User-Agent header; identify your tool per the API terms
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Cache is an optional Redis-backed response cache (nil disables)
	Cache *Cache
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "bgg-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Things fetches the raw items for a list of identifiers in one call.
// Statistics are requested, ancillary data is disabled. The returned
// slice preserves the server's item order. Transport, HTTP, and decode
// failures surface as errors after bounded in-call retries; callers
// decide what to do with an empty (but well-formed) result.
func (c *Client) Things(ctx context.Context, ids []int64) ([]Thing, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids requested")
	}

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Serve from cache when possible
	if c.config.Cache != nil {
		entry, err := c.config.Cache.Get(ctx, ids, thingFlags)
		if err != nil && err != ErrCacheMiss {
			c.logger.Warn().Err(err).Msg("Cache get error")
		}
		if entry != nil {
			c.logger.Debug().
				Int("ids", len(ids)).
				Time("cached_at", entry.CachedAt).
				Msg("Serving things from cache")
			return decodeThings(entry.Data)
		}
	}

	url := fmt.Sprintf("%s/thing?id=%s&%s", c.config.BaseURL, joinIDs(ids), thingFlags)

	c.logger.Debug().
		Int("ids", len(ids)).
		Msg("Fetching things")

	var body []byte
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/xml")

		resp, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Msg("HTTP request failed")
			errClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues("network_error").Inc()
			return reqErr
		}
		defer resp.Body.Close()

		requestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode != http.StatusOK {
			errClass = classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Thing request error")

			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			errClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			return fmt.Errorf("read response body: %w", err)
		}
		return nil
	}, func(err error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		return nil, retryErr
	}

	things, err := decodeThings(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, err
	}

	if c.config.Cache != nil {
		if err := c.config.Cache.Set(ctx, ids, thingFlags, body); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return things, nil
}

// Close closes the client and releases idle connections. The loop
// discards and recreates clients after a fetch failure, so Close must
// be safe to call on a client in any state.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// classifyStatus categorizes an HTTP status for retry and observability.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusAccepted:
		return ErrorClassQueued
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// decodeThings parses a thing response body.
func decodeThings(body []byte) ([]Thing, error) {
	var parsed thingsResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode things response",
			Err:        err,
		}
	}
	return parsed.Items, nil
}

// joinIDs renders an id list as the comma-separated query form.
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
