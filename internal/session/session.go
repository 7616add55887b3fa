// Package session owns the signed-in user's credential for the lifetime of
// a chat view.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vgs/marketchat/internal/credstore"
)

var (
	ErrAuthMissing = errors.New("not signed in")
	ErrClosed      = errors.New("session closed")
)

// Session reads the credential once at Open; stores receive it explicitly
// from Token instead of reaching into the credential store themselves.
type Session struct {
	mu     sync.RWMutex
	token  string
	selfID string
	closed bool
}

// Open loads the token from store. A missing token yields ErrAuthMissing.
func Open(ctx context.Context, store credstore.Store) (*Session, error) {
	token, err := store.Get(ctx, credstore.TokenKey)
	if errors.Is(err, credstore.ErrNotFound) || (err == nil && token == "") {
		return nil, ErrAuthMissing
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}
	return New(token), nil
}

// New wraps an already known token.
func New(token string) *Session {
	return &Session{
		token:  token,
		selfID: SubjectOf(token),
	}
}

// Token returns the bearer token, or ErrAuthMissing once closed or empty.
func (s *Session) Token() (string, error) {
	if s == nil {
		return "", ErrAuthMissing
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	if s.token == "" {
		return "", ErrAuthMissing
	}
	return s.token, nil
}

// SelfID is the signed-in user's identifier, compared against message
// sender IDs. Empty when the token carries no subject.
func (s *Session) SelfID() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// Close drops the credential from memory. It does not touch the store.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.token = ""
}

// SubjectOf returns the "sub" claim of a JWT without verifying it. The
// server verifies the signature; the client only needs to know who it is.
func SubjectOf(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
