package api

import (
	"time"

	"github.com/google/uuid"
)

// ConfirmResponse is the outcome of one verification attempt. CleanURL
// is what the caller should put in the address bar whatever the
// outcome.
type ConfirmResponse struct {
	State           string       `json:"state"`
	Message         string       `json:"message"`
	Protocol        string       `json:"protocol,omitempty"`
	CleanURL        string       `json:"clean_url"`
	RedirectAfterMS int          `json:"redirect_after_ms,omitempty"`
	Email           string       `json:"email,omitempty"`
	Profile         *ProfileView `json:"profile,omitempty"`
}

// ProfileView is the profile row as exposed over the API.
type ProfileView struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// SessionResponse is the current session snapshot.
type SessionResponse struct {
	Email         string       `json:"email,omitempty"`
	EmailVerified bool         `json:"email_verified"`
	Profile       *ProfileView `json:"profile,omitempty"`
	Loading       bool         `json:"loading"`
}

// SignUpRequest registers a new account.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// SignInRequest authenticates with email and password.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest changes the display name.
type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
}

// ResendVerificationRequest asks for a fresh verification link. Email
// is optional; when absent the session's email is used.
type ResendVerificationRequest struct {
	Email string `json:"email,omitempty"`
}

// ResendVerificationResponse confirms a resend.
type ResendVerificationResponse struct {
	Message string `json:"message"`
}

// AuthEventRequest is a backend-pushed session state change.
type AuthEventRequest struct {
	Event   string        `json:"event"`
	Session *EventSession `json:"session,omitempty"`
}

// EventSession is the session payload of an auth event.
type EventSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
