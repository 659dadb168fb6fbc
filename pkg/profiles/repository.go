package profiles

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository handles storage operations for profiles. Every call carries
// the caller's bearer token because the hosted store enforces row-level
// policies per token; implementations that do their own access control
// may ignore it.
type Repository interface {
	// MarkVerified sets email_verified and verified_at on the row with the
	// given id and returns the updated row.
	MarkVerified(ctx context.Context, bearer string, id uuid.UUID, verifiedAt time.Time) (*Profile, error)

	// GetByID retrieves a profile by id.
	GetByID(ctx context.Context, bearer string, id uuid.UUID) (*Profile, error)

	// Create inserts a new profile row and returns it.
	Create(ctx context.Context, bearer string, profile Profile) (*Profile, error)

	// UpdateFullName updates the profile's display name. Concurrent edits
	// are last-writer-wins.
	UpdateFullName(ctx context.Context, bearer string, id uuid.UUID, fullName string) (*Profile, error)
}
