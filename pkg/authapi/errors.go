package authapi

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is an explicit failure reported by the identity backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("auth api: %s (status %d)", e.Message, e.Status)
}

// apiErrorBody covers the error shapes the backend emits across
// endpoint generations.
type apiErrorBody struct {
	Code             string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (b apiErrorBody) message() string {
	for _, m := range []string{b.Msg, b.ErrorDescription, b.Message, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// IsExpired reports whether err is a backend rejection of an expired
// one-time code or link. Classification is by error code when present,
// falling back to a substring match on the description, which is all the
// backend guarantees.
func IsExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == "otp_expired" {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "expired")
}

// MentionsExpiry classifies a raw error code/description pair delivered
// on the link itself (the error-passthrough protocol).
func MentionsExpiry(code, description string) bool {
	if code == "otp_expired" {
		return true
	}
	return strings.Contains(strings.ToLower(description), "expired")
}
