package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"
)

type contextKey string

const userIDKey contextKey = "user_id"

type event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid token")
			return
		}

		userID, err := validateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	return r.Context().Value(userIDKey).(string)
}

// record counts the call and reports whether a configured failure was written.
func (s *Server) record(w http.ResponseWriter, endpoint string) bool {
	s.mu.Lock()
	s.calls[endpoint]++
	f, failing := s.failures[endpoint]
	s.mu.Unlock()

	if failing {
		writeError(w, f.status, f.code, "Injected failure")
	}
	return failing
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	if s.record(w, "threads") {
		return
	}
	s.mu.Lock()
	threads := s.threadsFor(userID(r))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	if s.record(w, "conversation") {
		return
	}
	s.mu.Lock()
	msgs := s.conversationOf(userID(r), r.PathValue("otherUserId"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	if s.record(w, "send") {
		return
	}

	var input struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TEXT", "Message text is required")
		return
	}

	me := userID(r)
	to := r.PathValue("recipientId")
	if to == me {
		writeError(w, http.StatusBadRequest, "CANNOT_MESSAGE_SELF", "Cannot message yourself")
		return
	}

	s.mu.Lock()
	msg := s.store(me, to, input.Text, s.now())
	s.mu.Unlock()
	s.notify(msg)

	writeJSON(w, http.StatusCreated, msg)
}

// serveWS authenticates with ?token= since browsers cannot set headers on
// a WebSocket upgrade.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	uid, err := validateToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.subscribers[uid] = append(s.subscribers[uid], conn)
	s.mu.Unlock()

	// Drain until the client goes away so close frames are handled.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()

	s.mu.Lock()
	conns := s.subscribers[uid]
	for i, c := range conns {
		if c == conn {
			s.subscribers[uid] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func validateToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenUnverifiable
		}
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}

	return claims.GetSubject()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
