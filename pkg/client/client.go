// Package client provides the marketplace query transport: a single-endpoint
// GraphQL client layered on the shared request cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/cache"
	"github.com/Sternrassler/marketplace-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for query transport operations.
var (
	queryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_query_requests_total",
		Help: "Total transport calls by operation and status",
	}, []string{"operation", "status"})

	queryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_query_duration_seconds",
		Help:    "Transport call duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"operation"})

	queryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_query_errors_total",
		Help: "Total failed queries by error class",
	}, []string{"class"})

	queryRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_query_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	queryRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_query_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	queryRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_query_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// maxErrorBody bounds how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// Endpoint is the single query URL accepting {query, variables}
	Endpoint string

	// UserAgent is sent on every request
	UserAgent string

	// Timeout bounds one transport call (ignored when HTTPClient is set)
	Timeout time.Duration

	// HTTPClient overrides the default HTTP client
	HTTPClient *http.Client

	// Cache is the shared request cache; a process-local one is created when nil
	Cache *cache.Manager

	// DefaultTTL applies to Query calls with ttl <= 0
	DefaultTTL time.Duration

	// Retry configures transport retries (disabled by default)
	Retry RetryConfig

	// Logger defaults to the global zerolog logger
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with safe defaults.
func DefaultConfig(endpoint, userAgent string) Config {
	return Config{
		Endpoint:   endpoint,
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		DefaultTTL: cache.DefaultTTL,
		Retry:      DefaultRetryConfig(),
	}
}

// Client is the marketplace query client.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = cache.DefaultTTL
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "query-client").Logger()
	} else {
		logger = logging.NewLogger("query-client")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cacheManager := cfg.Cache
	if cacheManager == nil {
		cacheManager = cache.NewManager(cache.Options{DefaultTTL: cfg.DefaultTTL, Logger: &logger})
	}

	return &Client{
		httpClient: httpClient,
		cache:      cacheManager,
		config:     cfg,
		logger:     logger,
	}, nil
}

// request is the wire body of one query.
type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// response is the wire envelope {data, errors?}.
type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []RemoteError   `json:"errors,omitempty"`
}

// RemoteError is one entry of a response's errors array.
type RemoteError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Query runs query through the request cache and decodes the data payload
// into out. Identical concurrent queries share one transport call. A payload
// that does not decode into out is never cached.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, ttl time.Duration, out any) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	key := cache.CacheKey{Query: query, Variables: variables}
	data, err := c.cache.Request(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		data, err := c.Raw(ctx, query, variables)
		if err != nil {
			return nil, err
		}
		if err := c.decode(query, data, out); err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	// Cache hits and coalesced callers decode here
	return c.decode(query, data, out)
}

// Raw sends query straight to the transport, bypassing the cache, and returns
// the undecoded data payload.
func (c *Client) Raw(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	operation := OperationName(query)

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, &QueryError{Operation: operation, Class: ErrorClassDecode, Message: "encode request", Err: err}
	}

	startTime := time.Now()
	defer func() {
		queryRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("operation", operation).
		Msg("Executing query")

	var data json.RawMessage
	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var callErr error
		data, callErr = c.do(ctx, operation, body)
		return callErr
	})
	if err != nil {
		class := ClassOf(err)
		queryErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Err(err).
			Str("operation", operation).
			Str("error_class", string(class)).
			Msg("Query failed")
		return nil, err
	}
	return data, nil
}

// do performs one HTTP round-trip.
func (c *Client) do(ctx context.Context, operation string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &QueryError{Operation: operation, Class: ErrorClassNetwork, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		queryRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, &QueryError{Operation: operation, Class: ErrorClassNetwork, Message: "transport failed", Err: err}
	}
	defer resp.Body.Close()

	queryRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		class := classifyStatus(resp.StatusCode)
		c.logger.Debug().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("class", string(class)).
			Msg("Error classified")

		qe := &QueryError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
		// A GraphQL error payload on a 4xx still reports its first message
		var envelope response
		if json.Unmarshal(snippet, &envelope) == nil && len(envelope.Errors) > 0 {
			qe.Class = ErrorClassRemote
			qe.Message = envelope.Errors[0].Message
		}
		return nil, qe
	}

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &QueryError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "decode response",
			Err:        err,
		}
	}

	if len(envelope.Errors) > 0 {
		return nil, &QueryError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassRemote,
			Message:    envelope.Errors[0].Message,
		}
	}

	return envelope.Data, nil
}

func (c *Client) decode(query string, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		queryErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &QueryError{
			Operation: OperationName(query),
			Class:     ErrorClassDecode,
			Message:   "decode data",
			Err:       err,
		}
	}
	return nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

var operationNamePattern = regexp.MustCompile(`^\s*(?:query|mutation)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// OperationName extracts the operation name of a document, "anonymous" if it has none.
func OperationName(query string) string {
	if m := operationNamePattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return "anonymous"
}

// InvalidateByPattern drops every cached query whose key contains pattern.
func (c *Client) InvalidateByPattern(ctx context.Context, pattern string) int {
	return c.cache.InvalidateByPattern(ctx, pattern)
}

// Cache returns the request cache.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
