package profiles

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-owned record mirroring a subset of identity
// state plus product-specific fields. EmailVerified is true only when
// the identity backend has confirmed the email and the synchronizer has
// observed that confirmation.
type Profile struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
