package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository is a mutex-guarded in-memory profile store, used by
// tests and by the inmem persistence mode.
type InMemRepository struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]Profile
}

// NewInMemRepository creates an empty in-memory repository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		profiles: make(map[uuid.UUID]Profile),
	}
}

// MarkVerified implements Repository.MarkVerified.
func (r *InMemRepository) MarkVerified(ctx context.Context, _ string, id uuid.UUID, verifiedAt time.Time) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}

	p.EmailVerified = true
	at := verifiedAt.UTC()
	p.VerifiedAt = &at
	r.profiles[id] = p

	out := p
	return &out, nil
}

// GetByID implements Repository.GetByID.
func (r *InMemRepository) GetByID(ctx context.Context, _ string, id uuid.UUID) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}

	out := p
	return &out, nil
}

// Create implements Repository.Create.
func (r *InMemRepository) Create(ctx context.Context, _ string, profile Profile) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[profile.ID]; ok {
		return nil, ErrProfileConflict
	}

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	r.profiles[profile.ID] = profile

	out := profile
	return &out, nil
}

// UpdateFullName implements Repository.UpdateFullName.
func (r *InMemRepository) UpdateFullName(ctx context.Context, _ string, id uuid.UUID, fullName string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}

	p.FullName = fullName
	r.profiles[id] = p

	out := p
	return &out, nil
}

// Len reports how many profile rows exist. Test helper.
func (r *InMemRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles)
}
