package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vgs/marketchat/internal/chat"
	"github.com/vgs/marketchat/internal/domain"
)

type threadsLoadedMsg struct {
	req chat.Request
	err error
}

type conversationLoadedMsg struct {
	peer string
	err  error
}

type sentMsg struct {
	msg *domain.Message
	err error
}

type incomingMsg struct {
	msg domain.Message
}

// Incoming wraps a message pushed by the live feed so it can be handed to
// tea.Program.Send.
func Incoming(msg domain.Message) tea.Msg {
	return incomingMsg{msg: msg}
}

func loadThreadsCmd(ctx context.Context, page *chat.Page) tea.Cmd {
	return func() tea.Msg {
		req, err := page.LoadThreads(ctx)
		return threadsLoadedMsg{req: req, err: err}
	}
}

func loadConversationCmd(ctx context.Context, page *chat.Page, req chat.Request) tea.Cmd {
	if req.Peer == "" {
		return nil
	}
	return func() tea.Msg {
		return conversationLoadedMsg{peer: req.Peer, err: page.LoadConversation(ctx, req)}
	}
}

func submitCmd(ctx context.Context, page *chat.Page) tea.Cmd {
	return func() tea.Msg {
		msg, err := page.Submit(ctx)
		return sentMsg{msg: msg, err: err}
	}
}
