package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/metrics"
	"github.com/vgs/marketchat/internal/session"
)

// Composer owns the draft and sends it. The message is shown only once the
// server has answered with its record; there is no local placeholder.
type Composer struct {
	api          api.Messaging
	conversation *ConversationStore
	threads      *ThreadStore
	logger       *zap.Logger
	metrics      *metrics.Metrics
	limiter      *rate.Limiter
	maxLen       int

	mu       sync.Mutex
	draft    string
	inFlight atomic.Bool
}

func NewComposer(messaging api.Messaging, conversation *ConversationStore, threads *ThreadStore, opts ...Option) *Composer {
	o := buildOptions(opts)
	return &Composer{
		api:          messaging,
		conversation: conversation,
		threads:      threads,
		logger:       o.logger.Named("composer"),
		metrics:      o.metrics,
		limiter:      o.limiter,
		maxLen:       o.maxDraft,
	}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Sending reports whether a submission is waiting for the server.
func (c *Composer) Sending() bool {
	return c.inFlight.Load()
}

// Submit sends the current draft to otherUserID.
//
// Blank or oversized drafts, a submission while another is in flight and a
// tripped send limiter are rejected before any network call. On success the
// draft is cleared (unless it was edited meanwhile), the server's message is
// appended to the conversation and the thread preview is patched. On failure
// the draft is kept for a retry.
func (c *Composer) Submit(ctx context.Context, token, otherUserID string) (*domain.Message, error) {
	draft := c.Draft()

	if reason, err := validateDraft(draft, c.maxLen); err != nil {
		c.metrics.Rejected(reason)
		return nil, err
	}
	if otherUserID == "" {
		return nil, ErrNoSelection
	}
	if token == "" {
		return nil, session.ErrAuthMissing
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.Rejected("in_flight")
		return nil, ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.Rejected("rate_limited")
		return nil, ErrRateLimited
	}

	msg, err := c.api.SendMessage(ctx, token, otherUserID, draft)
	if err != nil {
		c.logger.Error("failed sending message", zap.String("to", otherUserID), zap.Error(err))
		return nil, fmt.Errorf("sending message: %w", err)
	}

	c.mu.Lock()
	if c.draft == draft {
		c.draft = ""
	}
	c.mu.Unlock()

	c.conversation.AppendSent(otherUserID, *msg)
	c.threads.UpdateLastMessage(otherUserID, msg.Text, msg.SentAt)

	return msg, nil
}

// Reset drops the draft.
func (c *Composer) Reset() {
	c.SetDraft("")
}
