package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond

	maxRetryDelay = 10 * time.Second
)

// Client wraps http.Client with a bounded retry loop. Transport errors and
// 429/500/502/503/504 responses are retried with exponential backoff.
type Client struct {
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

func NewClient(timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: maxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// StatusError is returned when the final attempt produced a non-2xx
// response. Body holds at most the first 4KiB of the response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func Retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do sends a request built from method, url and body, and returns the
// body of the first 2xx response.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		respBody, err := c.once(ctx, method, url, header, body)
		if err == nil {
			return respBody, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !Retryable(statusErr.StatusCode) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	respBody, err := backoff.RetryWithData(op, c.backOff(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempts > 1 {
			return nil, fmt.Errorf("after %d attempts: %w", attempts, err)
		}
		return nil, err
	}
	return respBody, nil
}

// backOff doubles RetryDelay between attempts, without jitter, for at
// most MaxRetries retries.
func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.MaxRetries, 0))), ctx)
}

func (c *Client) once(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return respBody, nil
}
