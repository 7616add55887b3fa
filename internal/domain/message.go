package domain

import "time"

type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId,omitempty"`
	Text        string `json:"text"`
	SentAt      string `json:"sentAt"`
}

// SentTime parses SentAt. ok is false when it is empty or malformed.
func (m Message) SentTime() (at time.Time, ok bool) {
	return parseTimestamp(m.SentAt)
}

// FromSelf reports whether selfID authored the message.
func (m Message) FromSelf(selfID string) bool {
	return selfID != "" && m.SenderID == selfID
}

// Counterpart returns the other participant of the message as seen by selfID.
func (m Message) Counterpart(selfID string) string {
	if m.SenderID == selfID {
		return m.RecipientID
	}
	return m.SenderID
}
