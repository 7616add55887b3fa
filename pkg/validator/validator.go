package validator

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// Error joins the messages in field order so output is stable.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, v[f])
	}
	return strings.Join(msgs, "; ")
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

const (
	maxUserIDLength = 254
	maxNameLength   = 100
)

func ValidateUserID(userID string) ValidationErrors {
	errs := make(ValidationErrors)
	validateUserID("user_id", userID, errs)
	return errs
}

// ValidateDeepLink checks the target of a "message seller" link. The name
// is optional.
func ValidateDeepLink(userID, name string) ValidationErrors {
	errs := make(ValidationErrors)
	validateUserID("user_id", userID, errs)

	if utf8.RuneCountInString(strings.TrimSpace(name)) > maxNameLength {
		errs.Add("name", "Name is too long")
	}

	return errs
}

func ValidateToken(token string) ValidationErrors {
	errs := make(ValidationErrors)

	if token == "" {
		errs.Add("token", "Token is required")
	} else if strings.IndexFunc(token, unicode.IsSpace) >= 0 {
		errs.Add("token", "Token cannot contain whitespace")
	}

	return errs
}

func validateUserID(field, userID string, errs ValidationErrors) {
	switch {
	case strings.TrimSpace(userID) == "":
		errs.Add(field, "User ID is required")
	case len(userID) > maxUserIDLength:
		errs.Add(field, "User ID is too long")
	case strings.IndexFunc(userID, unicode.IsSpace) >= 0:
		errs.Add(field, "User ID cannot contain whitespace")
	case strings.ContainsAny(userID, "/?#"):
		errs.Add(field, "User ID cannot contain /, ? or #")
	}
}
