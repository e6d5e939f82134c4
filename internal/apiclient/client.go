// Package apiclient talks to the marketbaza REST service on behalf of the
// terminal controllers.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marketbaza/internal/domain"
	"marketbaza/internal/xid"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
)

// TokenSource yields the bearer token for outgoing requests. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SessionStore is the TokenSource that login and logout also write to.
type SessionStore interface {
	TokenSource
	Save(ctx context.Context, token string, user domain.User) error
	Clear(ctx context.Context) error
}

// NetworkError means no HTTP response was received.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Message is the service's own message
// when the body carried one.
type ServerError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	session SessionStore
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each attempt. A client passed through WithHTTPClient is
// copied first and never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts GET and DELETE get after a
// network error or a 502, 503 or 504.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(baseURL string, session SessionStore, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		session: session,
		retries: DefaultRetries,
		backoff: defaultBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.http
	hc.Timeout = c.timeout
	c.http = &hc
	c.logger = c.logger.With("component", "apiclient")
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	attempts := 1
	if method == http.MethodGet || method == http.MethodDelete {
		attempts += c.retries
	}
	requestID := xid.New("cli")

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return &NetworkError{Method: method, Path: path, Err: err}
			}
			c.logger.WarnContext(ctx, "retrying request", "method", method, "path", path, "attempt", attempt+1, "request_id", requestID, "error", lastErr)
		}

		retry, err := c.attempt(ctx, method, path, payload, requestID, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, requestID string, out any) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(xid.HeaderRequestID, requestID)

	if c.session != nil {
		token, err := c.session.Token(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "token lookup failed", "error", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		srvErr := &ServerError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: decodeMessage(resp.Body, resp.StatusCode),
		}
		retry := resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout
		return retry, srvErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return false, nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := c.backoff << (attempt - 1)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeMessage(body io.Reader, status int) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return fmt.Sprintf("server error (status %d)", status)
}
