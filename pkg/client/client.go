// Package client provides the core ADP HTTP request executor with token
// management, retry logic and error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hrops/adp-api-client/pkg/auth"
	"github.com/hrops/adp-api-client/pkg/cache"
)

// DefaultBaseURL is the ADP Workforce Now API base URL.
const DefaultBaseURL = "https://api.adp.com"

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// Prometheus metrics for request execution.
var (
	adpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_requests_total",
		Help: "Total ADP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	adpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adp_request_duration_seconds",
		Help:    "ADP request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	adpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adp_errors_total",
		Help: "Total ADP errors by status code",
	}, []string{"status"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API base; endpoints are resolved against it.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Retry is the transient-error retry policy.
	Retry RetryConfig

	// Cache, when non-nil, caches successful GET responses.
	Cache *cache.Store

	// HTTPClient overrides the mTLS client built from credentials
	// (for testing against plain HTTP servers).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Retry:   DefaultRetryConfig(),
	}
}

// Client executes single API calls against the ADP Workforce Now API. The
// underlying TLS session is established once at construction and its
// connection pool is shared across calls and goroutines; the only mutable
// shared state is the token, guarded inside the TokenManager.
type Client struct {
	httpClient *http.Client
	tokens     *auth.TokenManager
	baseURL    *url.URL
	config     Config
	cache      *cache.Store
	sleep      func(time.Duration)
	logger     zerolog.Logger
}

// New creates a new ADP API client. Credential problems (missing fields,
// unreadable certificate or key files) fail here and are never retried.
func New(creds auth.Credentials, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient, err = auth.NewTLSClient(creds, cfg.Timeout)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		httpClient: httpClient,
		tokens:     auth.NewTokenManager(httpClient, creds),
		baseURL:    baseURL,
		config:     cfg,
		cache:      cfg.Cache,
		sleep:      time.Sleep,
		logger:     log.With().Str("component", "adp-client").Logger(),
	}, nil
}

// Tokens returns the token manager so callers can pre-refresh the token
// before fanning out parallel requests.
func (c *Client) Tokens() *auth.TokenManager {
	return c.tokens
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases the client session: the cached token is invalidated (not
// revoked server-side) and idle connections are closed. Safe to call on
// all teardown paths.
func (c *Client) Close() error {
	c.tokens.Invalidate()
	c.httpClient.CloseIdleConnections()
	c.logger.Debug().Msg("Session closed")
	return nil
}

// CleanEndpoint validates an endpoint string and reduces it to a path.
// Accepted shapes: a leading-slash path, or a full URL on the configured
// API base (reduced with a warning). Anything else is a validation error,
// raised before any network call.
func (c *Client) CleanEndpoint(endpoint string) (string, error) {
	base := strings.TrimSuffix(c.baseURL.String(), "/")

	if strings.HasPrefix(endpoint, base) {
		trimmed := strings.TrimPrefix(endpoint, base)
		c.logger.Warn().
			Str("endpoint", trimmed).
			Msg("Full URL specification not needed, prefer the endpoint path")
		endpoint = trimmed
	}

	if !strings.HasPrefix(endpoint, "/") {
		c.logger.Error().Str("endpoint", endpoint).Msg("Incorrect endpoint received")
		return "", fmt.Errorf("%w: %s", ErrInvalidEndpoint, endpoint)
	}

	return endpoint, nil
}

// Do executes a single request with the retry policy applied. Auth headers
// are requested from the TokenManager on every attempt, so a token
// refreshed mid-retry-sequence is picked up immediately.
func (c *Client) Do(ctx context.Context, spec RequestSpec) (*Response, error) {
	endpoint, err := c.CleanEndpoint(spec.Path)
	if err != nil {
		return nil, err
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	if !supportedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	start := time.Now()
	defer func() {
		adpRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var cacheKey cache.Key
	useCache := c.cache != nil && method == http.MethodGet
	if useCache {
		cacheKey = cache.Key{Path: endpoint, Query: spec.Query.Encode(), Masked: spec.Masked}
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving response from cache")
			return &Response{StatusCode: http.StatusOK, Body: data}, nil
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	var body []byte
	if spec.Body != nil {
		body, err = json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("endpoint", endpoint).
		Str("method", method).
		Str("request_id", requestID).
		Logger()

	var resp *Response
	_, err = retryWithBackoff(ctx, c.config.Retry, endpoint, c.sleep, func(attempt int) (bool, error) {
		authHeader, err := c.tokens.AuthHeader(ctx)
		if err != nil {
			// Authentication errors surface immediately, never retried here.
			return false, err
		}

		req, err := c.buildRequest(ctx, method, endpoint, spec, body, authHeader, requestID)
		if err != nil {
			return false, err
		}

		logger.Debug().Int("attempt", attempt).Msg("Executing ADP request")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("HTTP request failed")
			adpRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return true, fmt.Errorf("request %s %s: %w", method, endpoint, err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			adpRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return true, fmt.Errorf("read response from %s: %w", endpoint, err)
		}

		status := fmt.Sprintf("%d", httpResp.StatusCode)
		adpRequestsTotal.WithLabelValues(endpoint, status).Inc()

		if httpResp.StatusCode >= 400 {
			adpErrorsTotal.WithLabelValues(status).Inc()
			apiErr := &APIError{
				StatusCode: httpResp.StatusCode,
				Endpoint:   endpoint,
				Attempts:   attempt,
				Message:    errorMessage(httpResp, respBody),
			}

			retryable := retryableStatus(httpResp.StatusCode)
			logger.Warn().
				Int("status", httpResp.StatusCode).
				Int("attempt", attempt).
				Bool("retryable", retryable).
				Msg("ADP request error")
			return retryable, apiErr
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       respBody,
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if useCache && resp.StatusCode == http.StatusOK {
		if err := c.cache.Set(ctx, cacheKey, resp.Body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// buildRequest assembles the http.Request for one attempt.
func (c *Client) buildRequest(ctx context.Context, method, endpoint string, spec RequestSpec, body []byte, authHeader, requestID string) (*http.Request, error) {
	// Endpoints may carry percent-escaped path values; parse keeps the
	// escaped form in RawPath so it is not escaped a second time.
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u := *c.baseURL
	u.Path = rel.Path
	u.RawPath = rel.RawPath
	u.RawQuery = spec.Query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range spec.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", fmt.Sprintf("application/json;masked=%t", spec.Masked))
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetSleep overrides the backoff sleep function (for testing).
func (c *Client) SetSleep(sleep func(time.Duration)) {
	c.sleep = sleep
}

// errorMessage extracts a short diagnostic from an error response.
func errorMessage(resp *http.Response, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return resp.Status
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
