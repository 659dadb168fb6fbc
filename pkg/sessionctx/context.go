package sessionctx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
)

// Event identifies a state transition of the session context.
type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
	EventUserUpdated    Event = "user_updated"
)

// AuthAPI is the slice of the identity backend the session context
// consumes; satisfied by *authapi.Client.
type AuthAPI interface {
	SignUp(ctx context.Context, req authapi.SignUpRequest) (*authapi.Session, error)
	PasswordGrant(ctx context.Context, email, password string) (*authapi.Session, error)
	GetUser(ctx context.Context, accessToken string) (*authapi.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProfileStore reconciles and updates profile rows; satisfied by
// profiles.Synchronizer plus the repository it wraps.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, params profiles.SyncParams, emailConfirmed bool) (*profiles.Profile, error)
}

// ProfileUpdater updates mutable profile fields; satisfied by any
// profiles.Repository.
type ProfileUpdater interface {
	UpdateFullName(ctx context.Context, bearer string, id uuid.UUID, fullName string) (*profiles.Profile, error)
}

// Snapshot is a point-in-time copy of the session state. Loading is
// true only before the first resolution completes.
type Snapshot struct {
	User    *authapi.User     `json:"user,omitempty"`
	Profile *profiles.Profile `json:"profile,omitempty"`
	Session *authapi.Session  `json:"-"`
	Loading bool              `json:"loading"`
}

// SessionContext holds the current user, session and profile and keeps
// them reconciled with the identity backend. State is mutex-guarded;
// subscribers are always notified outside the lock.
type SessionContext struct {
	auth    AuthAPI
	sync    ProfileStore
	updater ProfileUpdater

	mu      sync.RWMutex
	user    *authapi.User
	profile *profiles.Profile
	session *authapi.Session
	loading bool

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates a session context. The updater may be the same repository
// the synchronizer wraps.
func New(auth AuthAPI, store ProfileStore, updater ProfileUpdater) *SessionContext {
	return &SessionContext{
		auth:    auth,
		sync:    store,
		updater: updater,
		loading: true,
		subs:    make(map[int]func(Event)),
	}
}

// Current returns a snapshot of the session state.
func (s *SessionContext) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		User:    s.user,
		Profile: s.profile,
		Session: s.session,
		Loading: s.loading,
	}
}

// Subscribe registers a listener for session events. The returned
// function unregisters it.
func (s *SessionContext) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SessionContext) notify(event Event) {
	s.subMu.Lock()
	listeners := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// SignUp registers a new account. Most backends answer without a
// session because the email is not confirmed yet; the state then holds
// the user but no session until verification completes.
func (s *SessionContext) SignUp(ctx context.Context, email, password, fullName string) (Snapshot, error) {
	req := authapi.SignUpRequest{Email: email, Password: password}
	if fullName != "" {
		req.Data = map[string]any{"full_name": fullName}
	}

	session, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return s.Current(), fmt.Errorf("failed to sign up: %w", err)
	}

	s.adopt(ctx, session)
	s.notify(EventSignedIn)
	return s.Current(), nil
}

// SignIn authenticates with email and password.
func (s *SessionContext) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	session, err := s.auth.PasswordGrant(ctx, email, password)
	if err != nil {
		return s.Current(), fmt.Errorf("failed to sign in: %w", err)
	}

	s.adopt(ctx, session)
	s.notify(EventSignedIn)
	return s.Current(), nil
}

// SignOut revokes the backend session and clears local state. Local
// state is cleared even when the revocation call fails.
func (s *SessionContext) SignOut(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.user = nil
	s.profile = nil
	s.session = nil
	s.loading = false
	s.mu.Unlock()

	s.notify(EventSignedOut)

	if session != nil {
		if err := s.auth.SignOut(ctx, session.AccessToken); err != nil {
			slog.Warn("Backend sign-out failed after local state was cleared", "error", err)
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}
	return nil
}

// UpdateProfile changes the signed-in user's display name.
func (s *SessionContext) UpdateProfile(ctx context.Context, fullName string) (Snapshot, error) {
	s.mu.RLock()
	user := s.user
	session := s.session
	s.mu.RUnlock()

	if user == nil || session == nil {
		return s.Current(), fmt.Errorf("no signed-in user")
	}

	profile, err := s.updater.UpdateFullName(ctx, session.AccessToken, user.ID, fullName)
	if err != nil {
		return s.Current(), fmt.Errorf("failed to update profile: %w", err)
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()

	s.notify(EventUserUpdated)
	return s.Current(), nil
}

// HandleAuthEvent applies a backend-pushed state change: another tab's
// sign-in or sign-out, or a token refresh. Verification completed in
// another tab becomes visible here because reconciliation re-reads the
// backend's confirmation state.
func (s *SessionContext) HandleAuthEvent(ctx context.Context, event Event, session *authapi.Session) {
	switch event {
	case EventSignedOut:
		s.mu.Lock()
		s.user = nil
		s.profile = nil
		s.session = nil
		s.loading = false
		s.mu.Unlock()
	case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
		s.adopt(ctx, session)
	default:
		slog.Warn("Ignoring unknown auth event", "event", event)
		return
	}
	s.notify(event)
}

// Resolve loads the session state from an existing access token, for
// process start with a persisted cookie.
func (s *SessionContext) Resolve(ctx context.Context, accessToken string) Snapshot {
	if accessToken == "" {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return s.Current()
	}
	s.adopt(ctx, &authapi.Session{AccessToken: accessToken})
	return s.Current()
}

// adopt installs a session, refreshing the user from the backend when
// the payload lacks one, then reconciles the profile row.
func (s *SessionContext) adopt(ctx context.Context, session *authapi.Session) {
	if session == nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return
	}

	user := session.User
	if user == nil && session.AccessToken != "" {
		fetched, err := s.auth.GetUser(ctx, session.AccessToken)
		if err != nil {
			slog.Warn("Session adoption could not load the user", "error", err)
		} else {
			user = fetched
		}
	}

	var profile *profiles.Profile
	if user != nil {
		var err error
		profile, err = s.sync.EnsureProfile(ctx, profiles.SyncParams{
			UserID:   user.ID,
			Bearer:   session.AccessToken,
			Email:    user.Email,
			FullName: user.FullName(),
		}, user.EmailConfirmedAt != nil)
		if err != nil {
			// The session is still usable without a profile row; keep it and
			// let the next reconciliation retry.
			slog.Error("Profile reconciliation failed", "user_id", user.ID, "error", err)
		}
	}

	s.mu.Lock()
	s.user = user
	s.session = session
	if profile != nil {
		s.profile = profile
	}
	s.loading = false
	s.mu.Unlock()
}
