// Package live follows the server's WebSocket feed and hands new messages
// to the chat view.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/metrics"
)

const (
	maxMessageSize = 64 << 10
	dialTimeout    = 10 * time.Second
)

var ErrNoToken = errors.New("live: missing token")

type Subscriber struct {
	url        string
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retryDelay time.Duration
}

type Option func(*Subscriber)

func WithLogger(l *zap.Logger) Option {
	return func(s *Subscriber) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Subscriber) { s.metrics = m }
}

// WithRetry makes Run reconnect after d when the connection drops. Zero
// (the default) returns instead.
func WithRetry(d time.Duration) Option {
	return func(s *Subscriber) { s.retryDelay = d }
}

func NewSubscriber(feedURL string, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:    feedURL,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("live")
	return s
}

// URLFromBase derives the feed URL from the REST base URL:
// http(s)://host/prefix becomes ws(s)://host/prefix/ws.
func URLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("live: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Run delivers every new message to handle until ctx is done. The token
// travels as a query parameter, like a browser client would send it.
func (s *Subscriber) Run(ctx context.Context, token string, handle func(domain.Message)) error {
	if token == "" {
		return ErrNoToken
	}

	for {
		err := s.runOnce(ctx, token, handle)
		if ctx.Err() != nil {
			return nil
		}
		if s.retryDelay <= 0 {
			return err
		}

		s.logger.Warn("live feed dropped, reconnecting", zap.Error(err), zap.Duration("in", s.retryDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context, token string, handle func(domain.Message)) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dialing live feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxMessageSize)

	s.logger.Info("live feed connected")

	for {
		var event Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Info("live feed closed by server", zap.Int("status", int(websocket.CloseStatus(err))))
			}
			return err
		}
		s.metrics.Live(event.Type)
		s.handleEvent(&event, handle)
	}
}

func (s *Subscriber) handleEvent(event *Event, handle func(domain.Message)) {
	switch event.Type {
	case EventTypeMessageNew:
		var msg domain.Message
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			s.logger.Warn("invalid message.new payload", zap.Error(err))
			return
		}
		handle(msg)

	case EventTypeError:
		var p ErrorPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			s.logger.Debug("invalid error payload", zap.Error(err))
		}
		s.logger.Warn("live feed error", zap.String("code", p.Code), zap.String("message", p.Message))

	default:
		s.logger.Debug("ignoring live event", zap.String("type", event.Type))
	}
}
