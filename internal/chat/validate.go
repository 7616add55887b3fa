package chat

import (
	"strings"
	"unicode/utf8"
)

// validateDraft returns a short metrics label and the reason a draft cannot
// be sent, or an empty label and nil.
func validateDraft(text string, maxLen int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "empty", ErrEmptyDraft
	}
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		return "too_long", ErrDraftTooLong
	}
	return "", nil
}
