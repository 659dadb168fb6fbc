package authapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OTPType is the verification type carried on a one-time-code link.
type OTPType string

const (
	OTPTypeSignup      OTPType = "signup"
	OTPTypeMagicLink   OTPType = "magiclink"
	OTPTypeRecovery    OTPType = "recovery"
	OTPTypeEmailChange OTPType = "email_change"
	OTPTypeInvite      OTPType = "invite"
	OTPTypeSMS         OTPType = "sms"
)

// User is the identity backend's view of an account.
type User struct {
	ID               uuid.UUID         `json:"id"`
	Email            string            `json:"email"`
	EmailConfirmedAt *time.Time        `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any    `json:"user_metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// FullName returns the full_name metadata field if the backend has one.
func (u *User) FullName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["full_name"].(string)
	return name
}

// Session is an authenticated session as returned by the backend's
// token-issuing endpoints. It is held in memory only; persistence is
// the backend's concern.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"-"`
	User         *User      `json:"user,omitempty"`
}

// sessionEnvelope is the wire shape of a session response. expires_in is
// converted to an absolute ExpiresAt at decode time.
type sessionEnvelope struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

func (e *sessionEnvelope) toSession(now time.Time) *Session {
	s := &Session{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		User:         e.User,
	}
	switch {
	case e.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(e.ExpiresAt, 0)
	case e.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(e.ExpiresIn) * time.Second)
	}
	return s
}

// VerifyOTPRequest exchanges a one-time code (or its hash) for a session.
// Exactly one of Token or TokenHash is set; Email accompanies Token when
// the backend requires it to scope the lookup.
type VerifyOTPRequest struct {
	Type      OTPType `json:"type"`
	Token     string  `json:"token,omitempty"`
	TokenHash string  `json:"token_hash,omitempty"`
	Email     string  `json:"email,omitempty"`
}

// SignUpRequest registers a new account. Data is stored as user
// metadata (full_name and friends).
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// ResendRequest asks the backend for a fresh verification link.
type ResendRequest struct {
	Type       OTPType `json:"type"`
	Email      string  `json:"email"`
	RedirectTo string  `json:"-"`
}

// NormalizeOTPType maps a raw link parameter to a known OTP type.
// Absent or unrecognized values default to signup; the underscore
// variant of magiclink seen on older links is accepted.
func NormalizeOTPType(raw string) OTPType {
	switch OTPType(raw) {
	case OTPTypeSignup, OTPTypeMagicLink, OTPTypeRecovery, OTPTypeEmailChange, OTPTypeInvite, OTPTypeSMS:
		return OTPType(raw)
	}
	if raw == "magic_link" {
		return OTPTypeMagicLink
	}
	return OTPTypeSignup
}

// decodeSession reads a session response body. Sign-up responses carry a
// bare user object when the account still needs confirmation; that shape
// is accepted and returned as a session without tokens.
func decodeSession(body []byte, now time.Time) (*Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.AccessToken == "" && env.User == nil {
		var user User
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, err
		}
		if user.ID != uuid.Nil {
			return &Session{User: &user}, nil
		}
	}
	return env.toSession(now), nil
}
