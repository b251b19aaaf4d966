package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quotelab/watchfeed/internal/ratelimit"
)

// Client provides rate-limited, retrying access to the broker's data REST API.
type Client struct {
	baseURL    string
	keyID      string
	secret     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger

	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	batchQuotes bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. Credentials are sent on every
// request via the broker's key-id/secret header pair.
func NewClient(baseURL, keyID, secret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:     ratelimit.New(ratelimit.DefaultConfig()),
		logger:      slog.Default(),
		maxAttempts: 3,
		retryBase:   time.Second,
		retryMax:    30 * time.Second,
		batchQuotes: true,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the attempt cap and backoff schedule.
func WithRetries(attempts int, base, max time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.retryBase = base
		c.retryMax = max
	}
}

// WithLimiter sets the admission limiter shared across callers.
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBatchQuotes toggles the batched quote endpoint. Providers without a
// batch endpoint get N sequential rate-limited calls instead.
func WithBatchQuotes(enabled bool) ClientOption {
	return func(c *Client) {
		c.batchQuotes = enabled
	}
}
