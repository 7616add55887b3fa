package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/metrics"
	"github.com/vgs/marketchat/internal/session"
)

// Request identifies one conversation fetch. Only the most recently begun
// Request may write to the store.
type Request struct {
	Peer       string
	generation uint64
}

// ConversationStore holds the messages of the selected thread.
type ConversationStore struct {
	api     api.Messaging
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	peer       string
	messages   []domain.Message
	sentDuring []domain.Message
	loading    bool
	generation uint64
}

func NewConversationStore(messaging api.Messaging, opts ...Option) *ConversationStore {
	o := buildOptions(opts)
	return &ConversationStore{
		api:     messaging,
		logger:  o.logger.Named("conversation"),
		metrics: o.metrics,
	}
}

// Load fetches the conversation with otherUserID.
func (s *ConversationStore) Load(ctx context.Context, token, otherUserID string) ([]domain.Message, error) {
	return s.Fetch(ctx, token, s.Begin(otherUserID))
}

// Begin switches the store to otherUserID and invalidates every earlier
// Request. Messages of a different peer are cleared immediately.
func (s *ConversationStore) Begin(otherUserID string) Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.peer != otherUserID {
		s.messages = nil
	}
	s.peer = otherUserID
	s.sentDuring = nil
	s.loading = true
	return Request{Peer: otherUserID, generation: s.generation}
}

// Fetch runs req. Its result is applied only if no newer Request began in
// the meantime; otherwise ErrStaleResponse is returned and nothing changes.
func (s *ConversationStore) Fetch(ctx context.Context, token string, req Request) ([]domain.Message, error) {
	if token == "" {
		s.finish(req)
		return nil, session.ErrAuthMissing
	}

	fetched, err := s.api.ListMessages(ctx, token, req.Peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.generation != s.generation {
		s.metrics.Stale("conversation")
		s.logger.Debug("dropping stale conversation",
			zap.String("peer", req.Peer),
			zap.String("current", s.peer))
		return nil, ErrStaleResponse
	}
	s.loading = false

	if err != nil {
		s.logger.Error("failed loading messages", zap.String("peer", req.Peer), zap.Error(err))
		s.messages = nil
		s.sentDuring = nil
		return nil, fmt.Errorf("loading conversation with %s: %w", req.Peer, err)
	}

	messages := make([]domain.Message, len(fetched), len(fetched)+len(s.sentDuring))
	copy(messages, fetched)
	// Keep messages appended while the fetch was running that the server
	// snapshot predates.
	for _, m := range s.sentDuring {
		if !containsID(messages, m.ID) {
			messages = append(messages, m)
		}
	}
	s.messages = messages
	s.sentDuring = nil

	return s.snapshot(), nil
}

func (s *ConversationStore) finish(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.generation == s.generation {
		s.loading = false
	}
}

// AppendSent adds msg at the end of the list. It is a no-op when the store
// has moved on to another peer or already holds a message with the same ID.
func (s *ConversationStore) AppendSent(otherUserID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == "" || s.peer != otherUserID {
		return false
	}
	if msg.ID != "" && containsID(s.messages, msg.ID) {
		return false
	}
	s.messages = append(s.messages, msg)
	if s.loading {
		s.sentDuring = append(s.sentDuring, msg)
	}
	return true
}

// Peer returns the counterparty the messages belong to.
func (s *ConversationStore) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *ConversationStore) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *ConversationStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Reset empties the store and invalidates any fetch in flight.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.peer = ""
	s.messages = nil
	s.sentDuring = nil
	s.loading = false
}

func (s *ConversationStore) snapshot() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func containsID(messages []domain.Message, id string) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
