// Package chat reconciles the chat view state: thread list, selected
// conversation, message list and composer.
//
// Every type is safe for concurrent use. Network calls never hold a lock,
// and the order in which responses land is decided by per-store request
// generations rather than by arrival order.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vgs/marketchat/internal/api"
	"github.com/vgs/marketchat/internal/domain"
	"github.com/vgs/marketchat/internal/session"
)

// Page mounts the stores, the composer and the view coordinator together.
type Page struct {
	Threads      *ThreadStore
	Conversation *ConversationStore
	Composer     *Composer
	View         *ViewCoordinator

	sess   *session.Session
	logger *zap.Logger

	// mu orders selection changes against the conversation Begin that
	// follows them.
	mu   sync.Mutex
	link *domain.DeepLink
}

func NewPage(messaging api.Messaging, sess *session.Session, opts ...Option) *Page {
	o := buildOptions(opts)
	threads := NewThreadStore(messaging, opts...)
	conversation := NewConversationStore(messaging, opts...)
	return &Page{
		Threads:      threads,
		Conversation: conversation,
		Composer:     NewComposer(messaging, conversation, threads, opts...),
		View:         NewViewCoordinator(o.narrowWidth),
		sess:         sess,
		logger:       o.logger.Named("page"),
	}
}

// SelfID is the signed-in user's identifier.
func (p *Page) SelfID() string {
	return p.sess.SelfID()
}

// SignedIn reports whether the session holds a credential.
func (p *Page) SignedIn() bool {
	_, err := p.sess.Token()
	return err == nil
}

// Mount resets the view and remembers link for the first thread load.
func (p *Page) Mount(link *domain.DeepLink) {
	p.mu.Lock()
	p.link = link
	p.mu.Unlock()
	p.View.Mount()
}

// LoadThreads loads the thread list and begins the conversation fetch for
// whatever ends up selected. The returned Request has an empty Peer when
// nothing is selected. Without a credential nothing is requested.
func (p *Page) LoadThreads(ctx context.Context) (Request, error) {
	token, err := p.token()
	if err != nil {
		return Request{}, err
	}

	p.mu.Lock()
	link := p.link
	p.mu.Unlock()

	if _, err := p.Threads.Load(ctx, token, link); err != nil {
		// A failed load leaves no selection, so no conversation either.
		if !errors.Is(err, ErrStaleResponse) {
			p.mu.Lock()
			p.Conversation.Reset()
			p.mu.Unlock()
		}
		return Request{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// The deep link is consumed by the first load that lands.
	p.link = nil
	p.View.InitialLoad(!link.Empty())

	sel, ok := p.Threads.Selected()
	if !ok {
		p.Conversation.Reset()
		return Request{}, nil
	}
	return p.Conversation.Begin(sel.UserID), nil
}

// Select makes userID the active thread, switches a narrow view to the
// conversation and begins its fetch.
func (p *Page) Select(userID string) (Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Threads.Select(userID); err != nil {
		return Request{}, err
	}
	p.View.SelectThread()
	return p.Conversation.Begin(userID), nil
}

// LoadConversation runs a Request from LoadThreads or Select.
func (p *Page) LoadConversation(ctx context.Context, req Request) error {
	if req.Peer == "" {
		return nil
	}
	token, err := p.token()
	if err != nil {
		return err
	}
	_, err = p.Conversation.Fetch(ctx, token, req)
	return err
}

// Open mounts the page and loads threads and the selected conversation.
func (p *Page) Open(ctx context.Context, link *domain.DeepLink) error {
	p.Mount(link)
	req, err := p.LoadThreads(ctx)
	if err != nil {
		return err
	}
	return p.LoadConversation(ctx, req)
}

// SelectThread selects userID and loads its conversation.
func (p *Page) SelectThread(ctx context.Context, userID string) error {
	req, err := p.Select(userID)
	if err != nil {
		return err
	}
	return p.LoadConversation(ctx, req)
}

// Submit sends the composer's draft to the selected thread.
func (p *Page) Submit(ctx context.Context) (*domain.Message, error) {
	sel, ok := p.Threads.Selected()
	if !ok {
		return nil, ErrNoSelection
	}
	token, err := p.token()
	if err != nil {
		return nil, err
	}
	return p.Composer.Submit(ctx, token, sel.UserID)
}

func (p *Page) Back() {
	p.View.Back()
}

func (p *Page) Navigate(route string) {
	p.View.Navigate(route)
}

// Receive folds a message pushed by the server into the view: the thread
// preview is patched (or the thread added) and the message appended when
// its conversation is open.
//
// Without a self ID own messages cannot be told apart, so pushes are
// ignored.
func (p *Page) Receive(msg domain.Message) {
	self := p.SelfID()
	if self == "" {
		return
	}
	other := msg.Counterpart(self)
	if other == "" {
		return
	}

	p.Threads.Upsert(domain.Thread{
		UserID:      other,
		LastMessage: msg.Text,
		LastAt:      msg.SentAt,
	})
	p.Conversation.AppendSent(other, msg)
}

// VisibleThreads applies the view's filter to the thread list.
func (p *Page) VisibleThreads() []domain.Thread {
	threads := p.Threads.Threads()
	filter := strings.ToLower(strings.TrimSpace(p.View.Filter()))
	if filter == "" {
		return threads
	}
	out := threads[:0]
	for _, t := range threads {
		if strings.Contains(strings.ToLower(t.Name), filter) || strings.Contains(strings.ToLower(t.UserID), filter) {
			out = append(out, t)
		}
	}
	return out
}

// Unmount drops all view state. In-flight responses are discarded when
// they land.
func (p *Page) Unmount() {
	p.mu.Lock()
	p.link = nil
	p.mu.Unlock()
	p.View.Unmount()
	p.Threads.Reset()
	p.Conversation.Reset()
	p.Composer.Reset()
}

func (p *Page) token() (string, error) {
	token, err := p.sess.Token()
	if err != nil {
		p.logger.Debug("not signed in, skipping request", zap.Error(err))
		return "", err
	}
	return token, nil
}
