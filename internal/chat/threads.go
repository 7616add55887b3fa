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

// ThreadStore holds the ordered thread list and the current Selection.
type ThreadStore struct {
	api     api.Messaging
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	threads    []domain.Thread
	selected   string
	loading    bool
	generation uint64
}

func NewThreadStore(messaging api.Messaging, opts ...Option) *ThreadStore {
	o := buildOptions(opts)
	return &ThreadStore{
		api:     messaging,
		logger:  o.logger.Named("threads"),
		metrics: o.metrics,
	}
}

// Load fetches the user's threads. When link names a counterparty missing
// from the result, a placeholder thread for it is put first. The linked
// thread is selected if there is one, else the first thread.
//
// On failure the list is left empty. A response that arrives after a newer
// Load started is dropped and ErrStaleResponse returned.
func (s *ThreadStore) Load(ctx context.Context, token string, link *domain.DeepLink) ([]domain.Thread, error) {
	if token == "" {
		return nil, session.ErrAuthMissing
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	fetched, err := s.api.ListThreads(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.metrics.Stale("threads")
		s.logger.Debug("dropping stale thread list", zap.Uint64("generation", gen))
		return nil, ErrStaleResponse
	}
	s.loading = false

	if err != nil {
		s.logger.Error("failed loading threads", zap.Error(err))
		s.threads = nil
		s.selected = ""
		return nil, fmt.Errorf("loading threads: %w", err)
	}

	threads := dedupe(fetched)
	if !link.Empty() && indexOf(threads, link.OtherUserID) < 0 {
		threads = append([]domain.Thread{link.Thread()}, threads...)
	}

	s.threads = threads
	switch {
	case !link.Empty():
		s.selected = link.OtherUserID
	case len(threads) > 0:
		s.selected = threads[0].UserID
	default:
		s.selected = ""
	}

	return s.snapshot(), nil
}

// Select makes userID the active thread.
func (s *ThreadStore) Select(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.threads, userID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownThread, userID)
	}
	s.selected = userID
	return nil
}

// Selected returns the active thread, if any.
func (s *ThreadStore) Selected() (domain.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.threads, s.selected)
	if s.selected == "" || i < 0 {
		return domain.Thread{}, false
	}
	return s.threads[i], true
}

func (s *ThreadStore) Threads() []domain.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *ThreadStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// UpdateLastMessage patches the list preview of userID in place. It reports
// whether the thread was found.
func (s *ThreadStore) UpdateLastMessage(userID, text, at string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.threads, userID)
	if i < 0 {
		return false
	}
	s.threads[i].LastMessage = text
	s.threads[i].LastAt = at
	return true
}

// Upsert patches the preview of an existing thread, or puts an unknown
// counterparty first.
func (s *ThreadStore) Upsert(t domain.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.threads, t.UserID); i >= 0 {
		s.threads[i].LastMessage = t.LastMessage
		s.threads[i].LastAt = t.LastAt
		return
	}
	if t.Name == "" {
		t.Name = t.UserID
	}
	s.threads = append([]domain.Thread{t}, s.threads...)
}

// Reset forgets everything and invalidates any Load in flight.
func (s *ThreadStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.threads = nil
	s.selected = ""
	s.loading = false
}

func (s *ThreadStore) snapshot() []domain.Thread {
	out := make([]domain.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

func indexOf(threads []domain.Thread, userID string) int {
	for i, t := range threads {
		if t.UserID == userID {
			return i
		}
	}
	return -1
}

// dedupe keeps the first thread per user, preserving order.
func dedupe(threads []domain.Thread) []domain.Thread {
	seen := make(map[string]struct{}, len(threads))
	out := make([]domain.Thread, 0, len(threads))
	for _, t := range threads {
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		out = append(out, t)
	}
	return out
}
