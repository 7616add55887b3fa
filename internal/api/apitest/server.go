// Package apitest runs an in-memory Messaging API for tests.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/vgs/marketchat/internal/domain"
)

const secret = "apitest-secret"

// Server serves the thread, conversation, send and live endpoints from
// memory. It is safe for concurrent use.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	users       map[string]string
	messages    []domain.Message
	calls       map[string]int
	failures    map[string]failure
	subscribers map[string][]*websocket.Conn
	now         func() time.Time
}

type failure struct {
	status int
	code   string
}

func New() *Server {
	s := &Server{
		users:       make(map[string]string),
		calls:       make(map[string]int),
		failures:    make(map[string]failure),
		subscribers: make(map[string][]*websocket.Conn),
		now:         time.Now,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /messages/threads", s.auth(s.listThreads))
	mux.Handle("GET /messages/with/{otherUserId}", s.auth(s.conversation))
	mux.Handle("POST /messages/{recipientId}", s.auth(s.send))
	mux.HandleFunc("GET /ws", s.serveWS)

	s.srv = httptest.NewServer(mux)
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.mu.Lock()
	var open []*websocket.Conn
	for _, conns := range s.subscribers {
		open = append(open, conns...)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.Close(websocket.StatusGoingAway, "server closing")
	}
	s.srv.Close()
}

// SetClock fixes the time stamped on sent messages.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers a user and its display name.
func (s *Server) AddUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

// Token mints a signed bearer token whose subject is userID.
func (s *Server) Token(userID string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// Seed stores a message as if it had been sent at sentAt.
func (s *Server) Seed(from, to, text string, sentAt time.Time) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(from, to, text, sentAt)
}

// Deliver stores a message from another user and pushes it to live
// subscribers, the way a second client sending would.
func (s *Server) Deliver(from, to, text string) domain.Message {
	s.mu.Lock()
	msg := s.store(from, to, text, s.now())
	s.mu.Unlock()
	s.notify(msg)
	return msg
}

// Fail makes every call to endpoint ("threads", "conversation", "send")
// answer with status until cleared with status 0.
func (s *Server) Fail(endpoint string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, endpoint)
		return
	}
	s.failures[endpoint] = failure{status: status, code: code}
}

// Calls returns how many requests endpoint has received.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Subscribers returns the number of open live connections for userID.
func (s *Server) Subscribers(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[userID])
}

func (s *Server) store(from, to, text string, sentAt time.Time) domain.Message {
	msg := domain.Message{
		ID:          uuid.NewString(),
		SenderID:    from,
		RecipientID: to,
		Text:        text,
		SentAt:      sentAt.UTC().Format(time.RFC3339Nano),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// threadsFor keeps the latest message per counterpart, newest thread first.
func (s *Server) threadsFor(me string) []domain.Thread {
	last := make(map[string]domain.Message)
	for _, m := range s.messages {
		var other string
		switch me {
		case m.SenderID:
			other = m.RecipientID
		case m.RecipientID:
			other = m.SenderID
		default:
			continue
		}
		prev, ok := last[other]
		if !ok || sentAfter(m, prev) {
			last[other] = m
		}
	}

	others := make([]string, 0, len(last))
	for other := range last {
		others = append(others, other)
	}
	sort.SliceStable(others, func(i, j int) bool {
		return sentAfter(last[others[i]], last[others[j]])
	})

	threads := make([]domain.Thread, 0, len(last))
	for _, other := range others {
		m := last[other]
		name, ok := s.users[other]
		if !ok {
			name = other
		}
		threads = append(threads, domain.Thread{
			UserID:      other,
			Name:        name,
			LastMessage: m.Text,
			LastAt:      m.SentAt,
		})
	}
	return threads
}

func (s *Server) conversationOf(me, other string) []domain.Message {
	out := []domain.Message{}
	for _, m := range s.messages {
		if (m.SenderID == me && m.RecipientID == other) || (m.SenderID == other && m.RecipientID == me) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sentAfter(out[j], out[i])
	})
	return out
}

func (s *Server) notify(msg domain.Message) {
	evt := event{
		Type:      "message.new",
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	evt.Payload = payload

	s.mu.Lock()
	var targets []*websocket.Conn
	for _, id := range []string{msg.SenderID, msg.RecipientID} {
		targets = append(targets, s.subscribers[id]...)
	}
	s.mu.Unlock()

	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Write(ctx, websocket.MessageText, data)
		cancel()
	}
}

func sentAfter(a, b domain.Message) bool {
	at, _ := a.SentTime()
	bt, _ := b.SentTime()
	return at.After(bt)
}
