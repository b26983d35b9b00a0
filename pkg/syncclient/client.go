package syncclient

import (
	"net/http"
)

// Client is the upstream HTTP client used to execute queued actions and to
// probe upstream reachability. Every request passes through the rate limiter
// and the circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryPolicy
	limiter *RateLimiter
	breaker CircuitBreaker
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			MaxRetries: cfg.RetryCount,
			BaseDelay:  cfg.RetryDelay,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}
