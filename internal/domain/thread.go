package domain

import "time"

// Thread is the per-counterparty summary shown in the thread list.
type Thread struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	LastMessage string `json:"lastMessage"`
	// LastAt is empty for threads synthesized from a deep link.
	LastAt string `json:"lastAt"`
}

// Pending reports whether the thread has no message yet.
func (t Thread) Pending() bool {
	return t.LastAt == "" && t.LastMessage == ""
}

// LastActivity parses LastAt. ok is false when LastAt is empty or malformed.
func (t Thread) LastActivity() (at time.Time, ok bool) {
	return parseTimestamp(t.LastAt)
}

// DeepLink is the navigation payload handed over by the listing page when
// the user starts a conversation with a seller.
type DeepLink struct {
	OtherUserID   string `json:"otherUserId"`
	OtherUserName string `json:"otherUserName"`
}

// Empty reports whether the link carries no target.
func (d *DeepLink) Empty() bool {
	return d == nil || d.OtherUserID == ""
}

// Thread synthesizes the placeholder thread for the link target.
func (d *DeepLink) Thread() Thread {
	name := d.OtherUserName
	if name == "" {
		name = d.OtherUserID
	}
	return Thread{UserID: d.OtherUserID, Name: name}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
