// Package httpclient provides a small retrying HTTP client shared by the
// LLM provider implementations.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kart-io/docquery/pkg/utils/json"
)

// defaultBackoffStep is the linear backoff increment between retries.
const defaultBackoffStep = 500 * time.Millisecond

// StatusError reports a non-2xx response, preserving the status code so
// callers can distinguish throttling from hard failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status code %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client wraps http.Client with bounded retries for transient failures.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	backoffStep time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBackoffStep overrides the linear backoff increment.
func WithBackoffStep(step time.Duration) Option {
	return func(c *Client) {
		if step > 0 {
			c.backoffStep = step
		}
	}
}

// WithTransport overrides the underlying transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates a client with a per-request timeout and retry budget.
func NewClient(timeout time.Duration, maxRetries int, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		backoffStep: defaultBackoffStep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoRequest executes the request, retrying transport errors, 5xx and 429
// responses with linear backoff. The body is buffered once so it can be
// replayed on retry; provider payloads are small enough for this.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	var replay []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
		replay = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if replay != nil {
			req.Body = io.NopCloser(bytes.NewReader(replay))
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode}
		default:
			return resp, nil
		}

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(attempt+1) * c.backoffStep):
		}
	}
	return nil, lastErr
}

// DoJSON executes the request and decodes a JSON response into v,
// closing the body in all cases. Non-2xx responses become StatusError
// with the response body attached for diagnostics.
func (c *Client) DoJSON(req *http.Request, v any) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
