package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/leia-project/viewer-sub001/internal/retry"
)

// ErrUnsuccessful is returned by payload checks when a catalog answered but
// reported failure. It is retried.
var ErrUnsuccessful = errors.New("catalog request unsuccessful")

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// decodeError marks a payload that could not be parsed; it is not retried.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decoding response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Client performs catalog HTTP requests under a retry policy.
type Client struct {
	HTTP   *http.Client
	Policy retry.Policy
	Logger *slog.Logger
}

// NewClient creates a client with a 30s request timeout.
func NewClient(policy retry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Policy: policy,
		Logger: logger,
	}
}

// Classify maps catalog fetch errors to retry actions.
func Classify(err error) retry.Action {
	var status *StatusError
	var decode *decodeError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	case errors.As(err, &decode):
		return retry.Stop
	case errors.As(err, &status):
		if status.Code == http.StatusTooManyRequests {
			return retry.After
		}
		if status.Code >= 400 && status.Code < 500 {
			return retry.Stop
		}
	}
	return retry.Retry
}

// FetchJSON GETs url and decodes the body into a fresh T. accept, when not
// nil, validates the payload; returning ErrUnsuccessful makes it retry.
func FetchJSON[T any](ctx context.Context, c *Client, url string, accept func(*T) error) (*T, error) {
	policy := c.Policy
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			c.Logger.Warn("catalog request failed, retrying",
				"url", url, "attempt", attempt, "backoff", backoff, "error", err)
		}
	}

	return retry.Do(ctx, policy, Classify, func(ctx context.Context) (*T, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &decodeError{err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{URL: url, Code: resp.StatusCode}
		}

		out := new(T)
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &decodeError{err: err}
		}
		if accept != nil {
			if err := accept(out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}
