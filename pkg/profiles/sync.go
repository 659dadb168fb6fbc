package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SyncParams identify the profile to mark verified and carry the
// defaults used if the row has to be created.
type SyncParams struct {
	UserID   uuid.UUID
	Bearer   string
	Email    string
	FullName string
}

// Synchronizer performs the idempotent "mark verified" upsert. The
// store's row-level policy differs for updating, reading and inserting a
// row, and a single call cannot distinguish "row missing" from "row
// exists but policy denied", so Sync probes in a fixed order:
// update, then fetch, then create, then re-fetch on a create conflict.
type Synchronizer struct {
	repo Repository
	now  func() time.Time
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithClock overrides the clock used for verified_at timestamps.
func WithClock(now func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// NewSynchronizer creates a new profile synchronizer.
func NewSynchronizer(repo Repository, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync marks the user's profile verified and returns the stored row.
// Each step is attempted exactly once; calling Sync twice with the same
// arguments converges to the same stored state and never double-applies.
// Any outcome other than success or an anticipated fallback code
// propagates to the caller as a hard error.
func (s *Synchronizer) Sync(ctx context.Context, params SyncParams) (*Profile, error) {
	if params.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}

	verifiedAt := s.now().UTC()

	// Step 1: conditional update of the existing row.
	profile, err := s.repo.MarkVerified(ctx, params.Bearer, params.UserID, verifiedAt)
	if err == nil {
		return profile, nil
	}

	switch {
	case errors.Is(err, ErrProfileNotAcceptable), errors.Is(err, ErrProfileConflict):
		// Step 2: the policy rejected the write shape or zero rows matched
		// ambiguously. Probe with a direct read.
		slog.Info("Profile update rejected, probing with fetch", "user_id", params.UserID, "reason", err)
		profile, fetchErr := s.repo.GetByID(ctx, params.Bearer, params.UserID)
		if fetchErr == nil {
			// Step 3: already synchronized, possibly by a concurrent caller.
			return profile, nil
		}
		if !errors.Is(fetchErr, ErrProfileNotFound) {
			return nil, fmt.Errorf("failed to fetch profile after rejected update: %w", fetchErr)
		}
		// Fall through to creation.
	case errors.Is(err, ErrProfileNotFound):
		// Fall through to creation.
	default:
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	// Step 4: no row exists anywhere, create it verified.
	created, err := s.repo.Create(ctx, params.Bearer, Profile{
		ID:            params.UserID,
		Email:         params.Email,
		FullName:      params.FullName,
		EmailVerified: true,
		VerifiedAt:    &verifiedAt,
	})
	if err == nil {
		slog.Info("Profile created during verification", "user_id", params.UserID)
		return created, nil
	}

	if errors.Is(err, ErrProfileConflict) {
		// Step 5: a concurrent request created the row first.
		profile, fetchErr := s.repo.GetByID(ctx, params.Bearer, params.UserID)
		if fetchErr != nil {
			return nil, fmt.Errorf("failed to fetch profile after create conflict: %w", fetchErr)
		}
		return profile, nil
	}

	return nil, fmt.Errorf("failed to create profile: %w", err)
}

// EnsureProfile fetches the user's profile, creating it when absent.
// Unlike Sync it does not force verification: a created row takes its
// verified flag from emailConfirmed, the backend's own confirmation
// state, which keeps the session cache and the verification flow in
// agreement.
func (s *Synchronizer) EnsureProfile(ctx context.Context, params SyncParams, emailConfirmed bool) (*Profile, error) {
	if params.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}

	profile, err := s.repo.GetByID(ctx, params.Bearer, params.UserID)
	if err == nil {
		if emailConfirmed && !profile.EmailVerified {
			// Backend has confirmed since the row was written; reconcile.
			return s.Sync(ctx, params)
		}
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	newProfile := Profile{
		ID:            params.UserID,
		Email:         params.Email,
		FullName:      params.FullName,
		EmailVerified: emailConfirmed,
	}
	if emailConfirmed {
		at := s.now().UTC()
		newProfile.VerifiedAt = &at
	}

	created, err := s.repo.Create(ctx, params.Bearer, newProfile)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, ErrProfileConflict) {
		profile, fetchErr := s.repo.GetByID(ctx, params.Bearer, params.UserID)
		if fetchErr != nil {
			return nil, fmt.Errorf("failed to fetch profile after create conflict: %w", fetchErr)
		}
		return profile, nil
	}
	return nil, fmt.Errorf("failed to create profile: %w", err)
}
