package verifyflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
)

// fakeAuth scripts the identity backend per test.
type fakeAuth struct {
	verifyOTPFn    func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error)
	exchangeCodeFn func(ctx context.Context, code string) (*authapi.Session, error)
	getUserFn      func(ctx context.Context, accessToken string) (*authapi.User, error)
	resendFn       func(ctx context.Context, req authapi.ResendRequest) error

	refreshed chan string
	calls     int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{refreshed: make(chan string, 1)}
}

func (f *fakeAuth) VerifyOTP(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
	f.calls++
	if f.verifyOTPFn == nil {
		return nil, errors.New("unexpected VerifyOTP call")
	}
	return f.verifyOTPFn(ctx, req)
}

func (f *fakeAuth) ExchangeCode(ctx context.Context, code string) (*authapi.Session, error) {
	f.calls++
	if f.exchangeCodeFn == nil {
		return nil, errors.New("unexpected ExchangeCode call")
	}
	return f.exchangeCodeFn(ctx, code)
}

func (f *fakeAuth) RefreshSession(ctx context.Context, refreshToken string) (*authapi.Session, error) {
	f.refreshed <- refreshToken
	return &authapi.Session{AccessToken: "refreshed"}, nil
}

func (f *fakeAuth) GetUser(ctx context.Context, accessToken string) (*authapi.User, error) {
	f.calls++
	if f.getUserFn == nil {
		return nil, errors.New("unexpected GetUser call")
	}
	return f.getUserFn(ctx, accessToken)
}

func (f *fakeAuth) Resend(ctx context.Context, req authapi.ResendRequest) error {
	f.calls++
	if f.resendFn == nil {
		return errors.New("unexpected Resend call")
	}
	return f.resendFn(ctx, req)
}

// countingSyncer wraps the real synchronizer so tests can assert whether
// the profile store was touched at all.
type countingSyncer struct {
	inner *profiles.Synchronizer
	err   error
	calls int
}

func (c *countingSyncer) Sync(ctx context.Context, params profiles.SyncParams) (*profiles.Profile, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Sync(ctx, params)
}

type flowFixture struct {
	auth     *fakeAuth
	repo     *profiles.InMemRepository
	syncer   *countingSyncer
	executor *Executor
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	auth := newFakeAuth()
	repo := profiles.NewInMemRepository()
	syncer := &countingSyncer{inner: profiles.NewSynchronizer(repo)}

	deps := &Dependencies{Auth: auth, Profiles: syncer}
	executor := NewExecutor(DefaultRegistry(), deps)

	return &flowFixture{auth: auth, repo: repo, syncer: syncer, executor: executor}
}

func signAccessToken(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return signed
}

func TestErrorBranchBeatsTokenBranch(t *testing.T) {
	// A link carrying both an explicit backend error and an access token
	// must resolve via the error branch, with no network or store calls.
	f := newFlowFixture(t)
	userID := uuid.New()

	raw := "https://shop.example.com/auth/confirm?error_code=otp_expired&error_description=Email+link+has+expired#access_token=" + signAccessToken(t, userID, "buyer@example.com")

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateExpired, result.State)
	assert.Equal(t, "error_passthrough", result.Protocol)
	assert.Equal(t, 0, f.auth.calls)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestErrorBranchWithoutExpiryMention(t *testing.T) {
	f := newFlowFixture(t)

	raw := "https://shop.example.com/auth/confirm?error_code=access_denied&error_description=Invalid+request"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, MessageGeneric, result.Message)
}

func TestImplicitFlowCreatesProfile(t *testing.T) {
	// Scenario: a valid token pair in the fragment for a subject with no
	// existing profile row.
	f := newFlowFixture(t)
	userID := uuid.New()
	accessToken := signAccessToken(t, userID, "buyer@example.com")

	raw := "https://shop.example.com/auth/confirm#access_token=" + accessToken + "&refresh_token=rt1"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, MessageSuccess, result.Message)
	assert.Equal(t, "implicit", result.Protocol)
	assert.Equal(t, "buyer@example.com", result.Email)
	assert.Equal(t, 2500, result.RedirectAfterMS)
	assert.Equal(t, "https://shop.example.com/auth/confirm", result.CleanURL)

	require.NotNil(t, result.Profile)
	assert.Equal(t, userID, result.Profile.ID)
	assert.True(t, result.Profile.EmailVerified)

	stored, err := f.repo.GetByID(context.Background(), "", userID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	// Session establishment is fire-and-forget but must happen.
	select {
	case refreshToken := <-f.auth.refreshed:
		assert.Equal(t, "rt1", refreshToken)
	case <-time.After(2 * time.Second):
		t.Fatal("background session establishment never ran")
	}
}

func TestImplicitFlowMalformedToken(t *testing.T) {
	f := newFlowFixture(t)

	raw := "https://shop.example.com/auth/confirm#access_token=not-a-jwt"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestMalformedTokenFallsThroughToOTP(t *testing.T) {
	// A mangled fragment must not block a link that also carries a
	// usable one-time code.
	f := newFlowFixture(t)
	userID := uuid.New()

	f.auth.verifyOTPFn = func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
		return &authapi.Session{AccessToken: "at", User: &authapi.User{ID: userID, Email: "buyer@example.com"}}, nil
	}

	raw := "https://shop.example.com/auth/confirm?token_hash=abc&type=signup#access_token=not-a-jwt"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, "otp", result.Protocol)
}

func TestImplicitFlowSyncFailureReportsError(t *testing.T) {
	// Conservative bias: the identity confirmation already happened
	// server-side, but the client must not claim success it cannot
	// confirm locally.
	f := newFlowFixture(t)
	f.syncer.err = errors.New("store unavailable")
	userID := uuid.New()

	raw := "https://shop.example.com/auth/confirm#access_token=" + signAccessToken(t, userID, "buyer@example.com")

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, "buyer@example.com", result.Email, "email is kept for the resend control")
}

func TestOTPFlowExpired(t *testing.T) {
	// Scenario: {token_hash, type=signup} where the backend reports
	// expiry.
	f := newFlowFixture(t)
	f.auth.verifyOTPFn = func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
		require.Equal(t, authapi.OTPTypeSignup, req.Type)
		require.Equal(t, "abc", req.TokenHash)
		return nil, &authapi.APIError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Email link is invalid or has expired"}
	}

	raw := "https://shop.example.com/auth/confirm?token_hash=abc&type=signup"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateExpired, result.State)
	assert.Equal(t, MessageExpired, result.Message)
	assert.Equal(t, "otp", result.Protocol)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestOTPFlowSuccess(t *testing.T) {
	f := newFlowFixture(t)
	userID := uuid.New()
	confirmed := time.Now().UTC()

	f.auth.verifyOTPFn = func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
		return &authapi.Session{
			AccessToken: "at1",
			User: &authapi.User{
				ID:               userID,
				Email:            "buyer@example.com",
				EmailConfirmedAt: &confirmed,
			},
		}, nil
	}

	raw := "https://shop.example.com/auth/confirm?token_hash=abc&type=signup"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateSuccess, result.State)
	require.NotNil(t, result.Session)
	assert.Equal(t, "at1", result.Session.AccessToken)
	require.NotNil(t, result.Profile)
	assert.True(t, result.Profile.EmailVerified)
}

func TestOTPFlowReusedTokenResolvesToError(t *testing.T) {
	// Re-invoking with an already-consumed token_hash must resolve to
	// error, never re-succeed and never panic.
	f := newFlowFixture(t)
	f.auth.verifyOTPFn = func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
		return nil, &authapi.APIError{Status: http.StatusUnauthorized, Code: "otp_disabled", Message: "Token has already been used"}
	}

	raw := "https://shop.example.com/auth/confirm?token_hash=abc&type=signup"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestOTPFlowDefaultsUnknownType(t *testing.T) {
	f := newFlowFixture(t)
	userID := uuid.New()

	f.auth.verifyOTPFn = func(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error) {
		require.Equal(t, authapi.OTPTypeSignup, req.Type)
		return &authapi.Session{AccessToken: "at", User: &authapi.User{ID: userID, Email: "buyer@example.com"}}, nil
	}

	raw := "https://shop.example.com/auth/confirm?token=plain&type=mystery&email=buyer@example.com"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})
	assert.Equal(t, StateSuccess, result.State)
}

func TestPKCEFlow(t *testing.T) {
	f := newFlowFixture(t)
	userID := uuid.New()

	f.auth.exchangeCodeFn = func(ctx context.Context, code string) (*authapi.Session, error) {
		require.Equal(t, "authcode1", code)
		return &authapi.Session{AccessToken: "at", User: &authapi.User{ID: userID, Email: "buyer@example.com"}}, nil
	}

	raw := "https://shop.example.com/auth/confirm?code=authcode1"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, "pkce", result.Protocol)
}

func TestMissingParametersScenario(t *testing.T) {
	// Scenario: nothing recognized on the link and no active session.
	// No profile store call may be attempted.
	f := newFlowFixture(t)

	raw := "https://shop.example.com/auth/confirm"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, MessageMissingParams, result.Message)
	assert.Equal(t, "session_probe", result.Protocol)
	assert.Equal(t, 0, f.auth.calls)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestSessionProbeFindsConfirmedSession(t *testing.T) {
	// A prefetching email client let the backend consume the link before
	// the page loaded; the session it left behind still verifies.
	f := newFlowFixture(t)
	userID := uuid.New()
	confirmed := time.Now().UTC()

	f.auth.getUserFn = func(ctx context.Context, accessToken string) (*authapi.User, error) {
		require.Equal(t, "cookie-token", accessToken)
		return &authapi.User{ID: userID, Email: "buyer@example.com", EmailConfirmedAt: &confirmed}, nil
	}

	result := f.executor.Execute(context.Background(), Request{
		RawURL:       "https://shop.example.com/auth/confirm",
		SessionToken: "cookie-token",
	})

	assert.Equal(t, StateSuccess, result.State)
	require.NotNil(t, result.Profile)
	assert.True(t, result.Profile.EmailVerified)
}

func TestSessionProbeUnconfirmedSessionIsNotAVerification(t *testing.T) {
	f := newFlowFixture(t)

	f.auth.getUserFn = func(ctx context.Context, accessToken string) (*authapi.User, error) {
		return &authapi.User{ID: uuid.New(), Email: "buyer@example.com"}, nil
	}

	result := f.executor.Execute(context.Background(), Request{
		RawURL:       "https://shop.example.com/auth/confirm",
		SessionToken: "cookie-token",
	})

	assert.Equal(t, StateError, result.State)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestCleanURLAlwaysPopulated(t *testing.T) {
	f := newFlowFixture(t)

	raw := "https://shop.example.com/auth/confirm?error_code=bad&token_hash=abc"

	result := f.executor.Execute(context.Background(), Request{RawURL: raw})

	assert.Equal(t, "https://shop.example.com/auth/confirm", result.CleanURL)
	assert.Zero(t, result.RedirectAfterMS, "failures schedule no redirect")
}

func TestCustomRedirectDelay(t *testing.T) {
	auth := newFakeAuth()
	repo := profiles.NewInMemRepository()
	syncer := &countingSyncer{inner: profiles.NewSynchronizer(repo)}
	executor := NewExecutor(DefaultRegistry(), &Dependencies{Auth: auth, Profiles: syncer}, WithRedirectDelay(1*time.Second))

	userID := uuid.New()
	raw := "https://shop.example.com/auth/confirm#access_token=" + signAccessToken(t, userID, "b@e.c")

	result := executor.Execute(context.Background(), Request{RawURL: raw})
	require.Equal(t, StateSuccess, result.State)
	assert.Equal(t, 1000, result.RedirectAfterMS)
}
