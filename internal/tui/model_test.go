package tui

import (
	"context"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/api/apitest"
	"github.com/vgs/marketchat/internal/chat"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser("alice@uni.edu", "Alice A")
	srv.AddUser("carol@uni.edu", "Carol C")
	srv.Seed("alice@uni.edu", "me@uni.edu", "is the desk available?", base)
	return srv
}

func newModel(t *testing.T, srv *apitest.Server, token string, link *domain.DeepLink) (Model, *chat.Page) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	page := chat.NewPage(api.New(srv.URL()), session.New(token), chat.WithLogger(logger))
	return New(context.Background(), page, link, logger), page
}

// drive runs cmd and feeds its messages back until the chain ends. Only
// the model's own request commands are driven, never widget blink timers.
func drive(m tea.Model, cmd tea.Cmd) tea.Model {
	for cmd != nil {
		m, cmd = m.Update(cmd())
	}
	return m
}

func start(m Model, width int) tea.Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: 30})
	return drive(next, m.Init())
}

func press(m tea.Model, key string) tea.Model {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next
}

func pressEnter(m tea.Model) tea.Model {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return drive(next, cmd)
}

func TestWideLayoutShowsBothPanels(t *testing.T) {
	srv := newTestServer(t)
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)

	view := start(m, 120).View()

	assert.Equal(t, "alice@uni.edu", page.Conversation.Peer())
	assert.Contains(t, view, "Alice A")
	assert.Contains(t, view, "is the desk available?")
	assert.Contains(t, view, "Write a message...")
	assert.Equal(t, chat.ModeThreads, page.View.Mode())
}

func TestNarrowLayoutNavigation(t *testing.T) {
	srv := newTestServer(t)
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)

	next := start(m, 50)
	assert.Equal(t, chat.ModeThreads, page.View.Mode())
	assert.NotContains(t, next.View(), "Write a message...")

	next = pressEnter(next)
	assert.Equal(t, chat.ModeConversation, page.View.Mode())
	assert.Contains(t, next.View(), "Write a message...")
	assert.Len(t, page.Conversation.Messages(), 1)

	next = press(next, "esc")
	assert.Equal(t, chat.ModeThreads, page.View.Mode())
	assert.NotContains(t, next.View(), "Write a message...")
}

func TestDeepLinkOpensConversation(t *testing.T) {
	srv := newTestServer(t)
	link := &domain.DeepLink{OtherUserID: "bob@uni.edu", OtherUserName: "Bob B"}
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), link)

	next := start(m, 50)

	assert.Equal(t, chat.ModeConversation, page.View.Mode())
	assert.Equal(t, "bob@uni.edu", page.Conversation.Peer())
	view := next.View()
	assert.Contains(t, view, "Bob B")
	assert.Contains(t, view, "No messages yet")

	next = press(next, "hi bob")
	next = pressEnter(next)

	assert.Equal(t, 1, srv.Calls("send"))
	assert.Empty(t, next.(Model).composer.Value())
	require.Len(t, page.Conversation.Messages(), 1)
	assert.Equal(t, "hi bob", page.Conversation.Messages()[0].Text)
	assert.Contains(t, next.View(), "hi bob")
}

func TestDeepLinkBeforeFirstSize(t *testing.T) {
	srv := newTestServer(t)
	link := &domain.DeepLink{OtherUserID: "bob@uni.edu", OtherUserName: "Bob B"}
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), link)

	// The thread list lands before the terminal reports its size.
	next := drive(m, m.Init())
	assert.Equal(t, chat.ModeThreads, page.View.Mode())

	next, _ = next.Update(tea.WindowSizeMsg{Width: 50, Height: 30})
	assert.Equal(t, chat.ModeConversation, page.View.Mode())
	assert.Equal(t, focusComposer, next.(Model).focus)
	assert.Contains(t, next.View(), "Bob B")
	assert.Contains(t, next.View(), "Write a message...")
}

func TestBlankSendShowsError(t *testing.T) {
	srv := newTestServer(t)
	m, _ := newModel(t, srv, srv.Token("me@uni.edu"), nil)

	next := press(start(m, 120), "tab")
	next = press(next, "   ")
	next = pressEnter(next)

	assert.Equal(t, 0, srv.Calls("send"))
	assert.Equal(t, chat.ErrEmptyDraft.Error(), next.(Model).err)
}

func TestSendFailureKeepsDraft(t *testing.T) {
	srv := newTestServer(t)
	srv.Fail("send", http.StatusInternalServerError, "INTERNAL")
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)

	next := press(start(m, 120), "tab")
	next = press(next, "hello")
	next = pressEnter(next)

	model := next.(Model)
	assert.Equal(t, "hello", model.composer.Value())
	assert.Contains(t, model.err, "Message not sent")
	assert.Len(t, page.Conversation.Messages(), 1)

	srv.Fail("send", 0, "")
	next = pressEnter(next)
	assert.Empty(t, next.(Model).composer.Value())
	assert.Len(t, page.Conversation.Messages(), 2)
}

func TestFilterThreads(t *testing.T) {
	srv := newTestServer(t)
	srv.Seed("carol@uni.edu", "me@uni.edu", "lamp for sale", base.Add(-time.Hour))
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)

	next := press(start(m, 120), "/")
	next = press(next, "car")
	require.Len(t, page.VisibleThreads(), 1)
	assert.Equal(t, "carol@uni.edu", page.VisibleThreads()[0].UserID)

	next = press(next, "enter")
	next = pressEnter(next)
	assert.Equal(t, "carol@uni.edu", page.Conversation.Peer())

	next = press(next, "esc")
	next = press(next, "esc")
	assert.Len(t, page.VisibleThreads(), 2)
}

func TestNotSignedIn(t *testing.T) {
	srv := newTestServer(t)
	m, _ := newModel(t, srv, "", nil)

	view := start(m, 120).View()

	assert.Contains(t, view, "Not signed in")
	assert.Equal(t, 0, srv.Calls("threads"))
}

func TestIncomingMessage(t *testing.T) {
	srv := newTestServer(t)
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)
	next := start(m, 120)

	next, _ = next.Update(Incoming(domain.Message{
		ID: "live-1", SenderID: "alice@uni.edu", RecipientID: "me@uni.edu",
		Text: "still here?", SentAt: base.Add(time.Minute).Format(time.RFC3339),
	}))
	next, _ = next.Update(Incoming(domain.Message{
		ID: "live-2", SenderID: "dan@uni.edu", RecipientID: "me@uni.edu",
		Text: "hey", SentAt: base.Add(2 * time.Minute).Format(time.RFC3339),
	}))

	assert.Len(t, page.Conversation.Messages(), 2)
	assert.Contains(t, next.View(), "still here?")
	threads := page.Threads.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "dan@uni.edu", threads[0].UserID)
}

func TestQuit(t *testing.T) {
	srv := newTestServer(t)
	m, page := newModel(t, srv, srv.Token("me@uni.edu"), nil)
	next := start(m, 120)

	_, cmd := next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, page.Threads.Threads())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
