// Package api is a typed client for the marketplace Messaging API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/metrics"
)

// Error is returned when the API responds with a non-2xx status.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("messaging api %d: %s (%s)", e.Status, e.Message, e.Code)
}

// Unauthorized reports whether the server rejected the credential.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

var ErrMissingToken = errors.New("api: missing bearer token")

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Messaging is the subset of the API the chat stores consume.
type Messaging interface {
	ListThreads(ctx context.Context, token string) ([]domain.Thread, error)
	ListMessages(ctx context.Context, token, otherUserID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, token, otherUserID, text string) (*domain.Message, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

var _ Messaging = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListThreads calls GET /messages/threads.
func (c *Client) ListThreads(ctx context.Context, token string) ([]domain.Thread, error) {
	var out []domain.Thread
	if err := c.do(ctx, "threads", http.MethodGet, "/messages/threads", token, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Thread{}
	}
	return out, nil
}

// ListMessages calls GET /messages/with/{otherUserID}.
func (c *Client) ListMessages(ctx context.Context, token, otherUserID string) ([]domain.Message, error) {
	var out []domain.Message
	path := "/messages/with/" + url.PathEscape(otherUserID)
	if err := c.do(ctx, "conversation", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Message{}
	}
	return out, nil
}

// SendMessage calls POST /messages/{otherUserID}.
func (c *Client) SendMessage(ctx context.Context, token, otherUserID, text string) (*domain.Message, error) {
	var out domain.Message
	body := map[string]string{"text": text}
	path := "/messages/" + url.PathEscape(otherUserID)
	if err := c.do(ctx, "send", http.MethodPost, path, token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body any, out any) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.Request(endpoint, outcome)
	}()

	if token == "" {
		return ErrMissingToken
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
			return &Error{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
		}
		return &Error{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}
