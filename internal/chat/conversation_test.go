package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/metrics"
)

func msg(id, from, text string) domain.Message {
	return domain.Message{ID: id, SenderID: from, Text: text, SentAt: "2024-01-01T00:00:00Z"}
}

func TestConversationLoadKeepsServerOrder(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("3", "a", "third"), msg("1", "me", "first"), msg("2", "a", "second")}
	s := NewConversationStore(fake)

	got, err := s.Load(context.Background(), "tok", "a")
	require.NoError(t, err)
	assert.Equal(t, fake.messages["a"], got)
	assert.Equal(t, "a", s.Peer())
	assert.False(t, s.Loading())
}

func TestConversationLoadFailureLeavesEmpty(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("1", "a", "hi")}
	s := NewConversationStore(fake)
	_, err := s.Load(context.Background(), "tok", "a")
	require.NoError(t, err)

	boom := errors.New("502")
	fake.onListMessages = func(ctx context.Context, peer string) ([]domain.Message, error) {
		return nil, boom
	}
	_, err = s.Load(context.Background(), "tok", "a")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Messages())
	assert.False(t, s.Loading())
}

func TestConversationLoadingFlag(t *testing.T) {
	fake := newFakeAPI()
	s := NewConversationStore(fake)
	release := make(chan struct{})
	fake.onListMessages = func(ctx context.Context, peer string) ([]domain.Message, error) {
		<-release
		return nil, nil
	}

	req := s.Begin("a")
	assert.True(t, s.Loading())

	done := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), "tok", req)
		done <- err
	}()
	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Loading())
}

// Selecting "a" then "b" before "a" resolves must leave "b" displayed.
func TestConversationIgnoresLateResponse(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("a1", "a", "from a")}
	fake.messages["b"] = []domain.Message{msg("b1", "b", "from b")}

	releaseA := make(chan struct{})
	fake.onListMessages = func(ctx context.Context, peer string) ([]domain.Message, error) {
		if peer == "a" {
			<-releaseA
		}
		return fake.messagesFor(peer), nil
	}

	m := metrics.New(nil)
	s := NewConversationStore(fake, WithMetrics(m))

	reqA := s.Begin("a")
	doneA := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), "tok", reqA)
		doneA <- err
	}()

	got, err := s.Load(context.Background(), "tok", "b")
	require.NoError(t, err)
	assert.Equal(t, fake.messages["b"], got)

	close(releaseA)
	assert.ErrorIs(t, <-doneA, ErrStaleResponse)

	assert.Equal(t, "b", s.Peer())
	assert.Equal(t, fake.messages["b"], s.Messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleDropped.WithLabelValues("conversation")))
}

func TestConversationBeginClearsOtherPeer(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("a1", "a", "from a")}
	s := NewConversationStore(fake)
	_, err := s.Load(context.Background(), "tok", "a")
	require.NoError(t, err)

	s.Begin("b")
	assert.Empty(t, s.Messages(), "a's messages never show under b")

	s.Begin("b")
	assert.Equal(t, "b", s.Peer())
}

func TestAppendSent(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("1", "a", "hi")}
	s := NewConversationStore(fake)
	_, err := s.Load(context.Background(), "tok", "a")
	require.NoError(t, err)

	sent := msg("2", "me", "hello")
	assert.True(t, s.AppendSent("a", sent))
	assert.False(t, s.AppendSent("a", sent), "same id twice")
	assert.False(t, s.AppendSent("b", msg("3", "me", "wrong thread")))

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, sent, got[1])
	assert.Equal(t, 1, fake.count("conversation"), "no re-fetch")
}

func TestAppendSentDuringFetchSurvives(t *testing.T) {
	fake := newFakeAPI()
	release := make(chan struct{})
	fake.onListMessages = func(ctx context.Context, peer string) ([]domain.Message, error) {
		<-release
		return []domain.Message{msg("1", "a", "hi")}, nil
	}
	s := NewConversationStore(fake)

	req := s.Begin("a")
	done := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), "tok", req)
		done <- err
	}()

	require.True(t, s.AppendSent("a", msg("2", "me", "sent meanwhile")))
	close(release)
	require.NoError(t, <-done)

	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestConversationReset(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["a"] = []domain.Message{msg("1", "a", "hi")}
	s := NewConversationStore(fake)
	_, err := s.Load(context.Background(), "tok", "a")
	require.NoError(t, err)

	s.Reset()
	assert.Empty(t, s.Peer())
	assert.Empty(t, s.Messages())
	assert.False(t, s.AppendSent("a", msg("2", "me", "x")))
}

func (f *fakeAPI) messagesFor(peer string) []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[peer]...)
}
