// Package tokenhint decodes an access token's payload without verifying
// its signature. The decoded claims are a hint only, used to skip a
// round trip to the identity backend when a token is already in hand.
// They are never a trust boundary: anything security-relevant is decided
// by the backend call that produced the token, not by this package.
package tokenhint

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the unverified claims recovered from an access token. A
// Claims value proves nothing about the caller; treat it as a hint.
type Claims struct {
	Subject   uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the hinted expiry has passed. A zero expiry is
// treated as not expired, the backend is the authority either way.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Decode parses a compact three-part token and returns its claims, or
// nil when the structure is malformed in any way: wrong part count, bad
// base64, bad JSON, or a subject that is not a UUID. Decode never
// returns an error; callers treat nil as "fall through to the next
// protocol", not as a failure.
func Decode(raw string) *Claims {
	parser := jwt.NewParser()

	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil
	}

	subject, err := uuid.Parse(sub)
	if err != nil {
		return nil
	}

	claims := &Claims{Subject: subject}

	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims
}
