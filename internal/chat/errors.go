package chat

import "errors"

var (
	ErrStaleResponse = errors.New("response superseded by a newer request")
	ErrUnknownThread = errors.New("thread not in list")
	ErrNoSelection   = errors.New("no conversation selected")
	ErrEmptyDraft    = errors.New("message is empty")
	ErrDraftTooLong  = errors.New("message is too long")
	ErrSendInFlight  = errors.New("a message is already being sent")
	ErrRateLimited   = errors.New("sending too fast, try again shortly")
)

// IsValidation reports whether err was raised locally, before any network
// call, because the submission was not acceptable.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyDraft) ||
		errors.Is(err, ErrDraftTooLong) ||
		errors.Is(err, ErrSendInFlight) ||
		errors.Is(err, ErrRateLimited)
}
