package syncclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Result carries the transport-level outcome of one upstream request. A nil
// transport error with a 4xx/5xx StatusCode is still a Result, not an error;
// classification is the caller's concern.
type Result struct {
	StatusCode int
	Body       []byte

	// RetryAfter is parsed from the Retry-After response header when present.
	RetryAfter time.Duration
}

// Send performs one request against the upstream. Relative endpoints are
// resolved against the configured base URL. The circuit breaker rejecting the
// call surfaces as a transport error.
func (c *Client) Send(ctx context.Context, method, endpoint string, body []byte) (*Result, error) {
	url := c.resolve(endpoint)

	c.limiter.Wait(ctx)

	var result *Result
	err := c.breaker.Execute(func() error {
		var reqBody io.Reader
		if len(body) > 0 {
			reqBody = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return err
		}

		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		result = &Result{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

		// Server errors count against the breaker even though they are
		// returned to the caller as a Result.
		if resp.StatusCode >= 500 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil
	})

	if result != nil {
		return result, nil
	}
	return nil, err
}

// Probe checks upstream reachability against the configured health path.
// The probe is idempotent, so transient errors are retried.
func (c *Client) Probe(ctx context.Context) error {
	return c.retry.Do(ctx, true, func() error {
		result, err := c.Send(ctx, http.MethodGet, c.cfg.HealthPath, nil)
		if err != nil {
			return err
		}
		if result.StatusCode >= 500 {
			return &APIError{Status: result.StatusCode, Message: "upstream unhealthy"}
		}
		return nil
	})
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
