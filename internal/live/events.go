package live

import "encoding/json"

// Event types - Server → Client
const (
	EventTypeMessageNew = "message.new"
	EventTypeError      = "error"
)

// Event is the envelope of every frame on the live feed.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
