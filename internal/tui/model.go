// Package tui renders a chat.Page as a bubbletea program.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/vgs/marketchat/internal/chat"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/session"
)

type focusArea int

const (
	focusThreads focusArea = iota
	focusComposer
	focusFilter
)

const (
	threadsPanelWidth = 32
	chromeHeight      = 6
)

// Model is the tea.Model of the chat screen. All view state lives in the
// page; the model only keeps cursor, focus and widget state.
type Model struct {
	ctx    context.Context
	page   *chat.Page
	logger *zap.Logger
	styles Styles

	composer textinput.Model
	filter   textinput.Model
	messages viewport.Model

	focus  focusArea
	cursor int
	width  int
	height int

	status string
	err    string
}

// New mounts page with link and returns the model driving it. ctx bounds
// every request the model issues.
func New(ctx context.Context, page *chat.Page, link *domain.DeepLink, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	composer := textinput.New()
	composer.Placeholder = "Write a message..."
	composer.CharLimit = chat.DefaultMaxDraftLength
	composer.Prompt = "> "

	filter := textinput.New()
	filter.Placeholder = "Filter threads..."
	filter.CharLimit = 64
	filter.Prompt = "/ "

	page.Mount(link)

	return Model{
		ctx:      ctx,
		page:     page,
		logger:   logger.Named("tui"),
		styles:   DefaultStyles(),
		composer: composer,
		filter:   filter,
		messages: viewport.New(0, 0),
		status:   "Loading conversations...",
	}
}

func (m Model) Init() tea.Cmd {
	return loadThreadsCmd(m.ctx, m.page)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		before := m.page.View.Mode()
		m.page.View.Resize(msg.Width)
		m.layout()
		// A deep link that landed before the first size opens now.
		if before == chat.ModeThreads && m.page.View.Mode() == chat.ModeConversation && m.focus == focusThreads {
			m.focusComposer()
		}
		return m, nil

	case threadsLoadedMsg:
		return m.onThreadsLoaded(msg)

	case conversationLoadedMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrStaleResponse) {
			m.err = fmt.Sprintf("Could not load messages: %v", msg.err)
		}
		m.refreshMessages()
		return m, nil

	case sentMsg:
		return m.onSent(msg)

	case incomingMsg:
		m.page.Receive(msg.msg)
		m.syncCursor()
		m.refreshMessages()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.page.Unmount()
			return m, tea.Quit
		}
		switch m.focus {
		case focusFilter:
			return m.updateFilter(msg)
		case focusComposer:
			return m.updateComposer(msg)
		default:
			return m.updateThreads(msg)
		}
	}

	return m, nil
}

func (m Model) onThreadsLoaded(msg threadsLoadedMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, chat.ErrStaleResponse):
		return m, nil
	case errors.Is(msg.err, session.ErrAuthMissing), errors.Is(msg.err, session.ErrClosed):
		m.status = "Not signed in. Run `marketchat login --token <token>` first."
		return m, nil
	case msg.err != nil:
		m.status = ""
		m.err = fmt.Sprintf("Could not load conversations: %v", msg.err)
		return m, nil
	}

	m.status = ""
	m.err = ""
	m.syncCursor()
	m.refreshMessages()

	if msg.req.Peer != "" && m.page.View.Mode() == chat.ModeConversation {
		m.focusComposer()
	}
	return m, loadConversationCmd(m.ctx, m.page, msg.req)
}

func (m Model) onSent(msg sentMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.err = ""
	case chat.IsValidation(msg.err), errors.Is(msg.err, chat.ErrNoSelection):
		m.err = msg.err.Error()
	default:
		m.err = fmt.Sprintf("Message not sent: %v", msg.err)
	}

	// The draft survives a failure and is cleared on success unless the
	// user kept typing.
	m.composer.SetValue(m.page.Composer.Draft())
	m.composer.CursorEnd()
	m.syncCursor()
	m.refreshMessages()
	return m, nil
}

func (m Model) updateThreads(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.page.VisibleThreads()

	switch msg.String() {
	case "q":
		m.page.Unmount()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor >= len(visible) {
			return m, nil
		}
		req, err := m.page.Select(visible[m.cursor].UserID)
		if err != nil {
			m.err = err.Error()
			return m, nil
		}
		m.err = ""
		m.refreshMessages()
		m.focusComposer()
		return m, loadConversationCmd(m.ctx, m.page, req)
	case "tab":
		if _, ok := m.page.Threads.Selected(); ok {
			m.focusComposer()
		}
	case "/":
		m.focus = focusFilter
		m.filter.SetValue(m.page.View.Filter())
		return m, m.filter.Focus()
	case "esc":
		if m.page.View.Filter() != "" {
			m.page.View.SetFilter("")
			m.filter.Reset()
			m.syncCursor()
		}
	}
	return m, nil
}

func (m Model) updateComposer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.page.Composer.SetDraft(m.composer.Value())
		return m, submitCmd(m.ctx, m.page)
	case "esc":
		m.composer.Blur()
		m.focus = focusThreads
		m.page.Back()
		m.syncCursor()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	m.page.Composer.SetDraft(m.composer.Value())
	return m, cmd
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.filter.Blur()
		m.focus = focusThreads
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.page.View.SetFilter(m.filter.Value())
	m.cursor = 0
	return m, cmd
}

func (m *Model) focusComposer() {
	m.focus = focusComposer
	m.composer.Focus()
}

// syncCursor points the cursor at the selected thread.
func (m *Model) syncCursor() {
	sel, ok := m.page.Threads.Selected()
	visible := m.page.VisibleThreads()
	if ok {
		for i, t := range visible {
			if t.UserID == sel.UserID {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(visible) {
		m.cursor = max(len(visible)-1, 0)
	}
}

func (m *Model) layout() {
	// The panel pads one column on each side.
	inner := m.conversationWidth() - 2
	m.messages.Width = inner
	m.messages.Height = max(m.height-chromeHeight, 3)
	m.composer.Width = max(inner-4, 10)
	m.refreshMessages()
}

func (m Model) conversationWidth() int {
	if m.page.View.Narrow() || m.width == 0 {
		return max(m.width-4, 20)
	}
	return max(m.width-threadsPanelWidth-8, 20)
}

func (m *Model) refreshMessages() {
	m.messages.SetContent(m.renderMessages())
	m.messages.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("marketchat"))
	b.WriteString("\n")

	panels := m.page.View.Panels()
	var cols []string
	if panels.Threads {
		cols = append(cols, m.renderThreads())
	}
	if panels.Conversation {
		cols = append(cols, m.renderConversation())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")

	switch {
	case m.err != "":
		b.WriteString(m.styles.Error.Render(m.err))
	case m.status != "":
		b.WriteString(m.styles.Footer.Render(m.status))
	default:
		b.WriteString(m.styles.Footer.Render(m.help()))
	}
	return b.String()
}

func (m Model) help() string {
	switch m.focus {
	case focusComposer:
		if m.page.View.Narrow() {
			return "enter send • esc back • pgup/pgdown scroll • ctrl+c quit"
		}
		return "enter send • esc threads • pgup/pgdown scroll • ctrl+c quit"
	case focusFilter:
		return "enter/esc done"
	default:
		return "↑/↓ move • enter open • / filter • tab compose • q quit"
	}
}

func (m Model) renderThreads() string {
	var b strings.Builder

	if m.focus == focusFilter || m.page.View.Filter() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	visible := m.page.VisibleThreads()
	if len(visible) == 0 {
		if m.page.Threads.Loading() {
			b.WriteString(m.styles.Preview.Render("Loading..."))
		} else {
			b.WriteString(m.styles.Preview.Render("No conversations yet."))
		}
	}

	sel, _ := m.page.Threads.Selected()
	for i, t := range visible {
		name := t.Name
		if name == "" {
			name = t.UserID
		}
		if t.UserID == sel.UserID {
			name = m.styles.Active.Render(name)
		}
		line := name
		if i == m.cursor && m.focus == focusThreads {
			line = m.styles.Cursor.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		preview := t.LastMessage
		style := m.styles.Preview
		if t.Pending() {
			preview = "Start the conversation"
			style = m.styles.Pending
		}
		b.WriteString(style.Render(truncate(preview, threadsPanelWidth-2)))
		b.WriteString("\n")
	}

	width := threadsPanelWidth
	if m.page.View.Narrow() {
		width = max(m.width-4, threadsPanelWidth)
	}
	return m.styles.Panel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderConversation() string {
	sel, ok := m.page.Threads.Selected()
	if !ok {
		return m.styles.Panel.Width(m.conversationWidth()).Render(
			m.styles.Preview.Render("Select a conversation."))
	}

	title := sel.Name
	if title == "" {
		title = sel.UserID
	}

	var b strings.Builder
	b.WriteString(m.styles.Active.Render(title))
	b.WriteString("\n")
	b.WriteString(m.messages.View())
	b.WriteString("\n")
	b.WriteString(m.composer.View())
	if m.page.Composer.Sending() {
		b.WriteString(m.styles.Pending.Render(" sending..."))
	}
	return m.styles.Panel.Width(m.conversationWidth()).Render(b.String())
}

func (m Model) renderMessages() string {
	if m.page.Conversation.Loading() && len(m.page.Conversation.Messages()) == 0 {
		return m.styles.Preview.Render("Loading messages...")
	}

	msgs := m.page.Conversation.Messages()
	if len(msgs) == 0 {
		return m.styles.Preview.Render("No messages yet. Say hello!")
	}

	self := m.page.SelfID()
	sel, _ := m.page.Threads.Selected()
	other := sel.Name
	if other == "" {
		other = sel.UserID
	}

	var b strings.Builder
	for _, msg := range msgs {
		who := m.styles.Other.Render(other)
		if msg.FromSelf(self) {
			who = m.styles.Self.Render("You")
		}
		b.WriteString(who)
		if at, ok := msg.SentTime(); ok {
			b.WriteString(" ")
			b.WriteString(m.styles.Timestamp.Render(at.Local().Format("Jan 2 15:04")))
		}
		b.WriteString("\n")
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 2 {
		return s
	}
	return string(r[:n-1]) + "…"
}
