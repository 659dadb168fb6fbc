package verifyflow

import (
	"context"
	"log/slog"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
	"github.com/fernway/storefront/pkg/tokenhint"
)

// Classification priorities. First match wins.
const (
	OrderErrorPassthrough = 100
	OrderImplicitFlow     = 200
	OrderOTPFlow          = 300
	OrderPKCEFlow         = 400
	OrderSessionProbe     = 500
)

// ErrorPassthroughStep resolves links on which the backend already
// reported a failure, before any token material is looked at.
type ErrorPassthroughStep struct{}

func NewErrorPassthroughStep() *ErrorPassthroughStep {
	return &ErrorPassthroughStep{}
}

func (s *ErrorPassthroughStep) Name() string {
	return "error_passthrough"
}

func (s *ErrorPassthroughStep) Order() int {
	return OrderErrorPassthrough
}

func (s *ErrorPassthroughStep) Matches(fc *FlowContext) bool {
	return fc.Params.Has("error_code") || fc.Params.Has("error_description")
}

func (s *ErrorPassthroughStep) Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error) {
	code := fc.Params.Get("error_code")
	description := fc.Params.Get("error_description")

	slog.Info("Backend reported verification error on link", "code", code, "description", description)

	if authapi.MentionsExpiry(code, description) {
		return &StepOutcome{State: StateExpired, Message: MessageExpired}, nil
	}
	return &StepOutcome{State: StateError, Message: MessageGeneric}, nil
}

// ImplicitFlowStep handles links carrying a ready-to-use credential pair
// in the fragment. The access token is decoded locally as a hint to skip
// a round trip; the profile write is the authoritative outcome.
type ImplicitFlowStep struct{}

func NewImplicitFlowStep() *ImplicitFlowStep {
	return &ImplicitFlowStep{}
}

func (s *ImplicitFlowStep) Name() string {
	return "implicit"
}

func (s *ImplicitFlowStep) Order() int {
	return OrderImplicitFlow
}

// Matches requires a decodable token so a link with a mangled fragment
// falls through to any other protocol it carries. Decoding is local and
// pure, so doing it during classification costs no round trip.
func (s *ImplicitFlowStep) Matches(fc *FlowContext) bool {
	return fc.Params.Has("access_token") && tokenhint.Decode(fc.Params.Get("access_token")) != nil
}

func (s *ImplicitFlowStep) Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error) {
	accessToken := fc.Params.Get("access_token")

	hint := tokenhint.Decode(accessToken)
	if hint == nil {
		slog.Warn("Malformed access token on implicit-flow link")
		return &StepOutcome{State: StateError, Message: MessageGeneric}, nil
	}

	profile, err := fc.Services.Profiles.Sync(ctx, profiles.SyncParams{
		UserID: hint.Subject,
		Bearer: accessToken,
		Email:  hint.Email,
	})
	if err != nil {
		// The backend confirmed the email when it minted this token; the
		// local profile write is what failed. Reported as error anyway:
		// the client must not claim success it cannot confirm.
		slog.Error("Profile sync failed after implicit verification", "user_id", hint.Subject, "error", err)
		return &StepOutcome{State: StateError, Message: MessageGeneric, Email: hint.Email}, nil
	}

	session := &authapi.Session{
		AccessToken:  accessToken,
		RefreshToken: fc.Params.Get("refresh_token"),
		ExpiresAt:    hint.ExpiresAt,
	}

	if session.RefreshToken != "" {
		// Fire and forget. Success never waits on session establishment;
		// its failure is non-fatal because the profile write above is the
		// source of truth for verification.
		go func(ctx context.Context, auth AuthClient, refreshToken string) {
			if _, err := auth.RefreshSession(ctx, refreshToken); err != nil {
				slog.Warn("Background session establishment failed", "error", err)
			}
		}(context.WithoutCancel(ctx), fc.Services.Auth, session.RefreshToken)
	}

	return &StepOutcome{
		State:   StateSuccess,
		Email:   hint.Email,
		Session: session,
		Profile: profile,
	}, nil
}

// OTPFlowStep exchanges an opaque one-time code (or its hash) with the
// backend.
type OTPFlowStep struct{}

func NewOTPFlowStep() *OTPFlowStep {
	return &OTPFlowStep{}
}

func (s *OTPFlowStep) Name() string {
	return "otp"
}

func (s *OTPFlowStep) Order() int {
	return OrderOTPFlow
}

func (s *OTPFlowStep) Matches(fc *FlowContext) bool {
	return fc.Params.Has("token_hash") || fc.Params.Has("token")
}

func (s *OTPFlowStep) Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error) {
	req := authapi.VerifyOTPRequest{
		Type: authapi.NormalizeOTPType(fc.Params.Get("type")),
	}
	if tokenHash := fc.Params.Get("token_hash"); tokenHash != "" {
		req.TokenHash = tokenHash
	} else {
		req.Token = fc.Params.Get("token")
		req.Email = fc.Params.Get("email")
	}

	session, err := fc.Services.Auth.VerifyOTP(ctx, req)
	if err != nil {
		if authapi.IsExpired(err) {
			slog.Info("One-time code expired", "type", req.Type)
			return &StepOutcome{State: StateExpired, Message: MessageExpired, Email: fc.Params.Get("email")}, nil
		}
		slog.Error("One-time code verification failed", "type", req.Type, "error", err)
		return &StepOutcome{State: StateError, Message: MessageGeneric, Email: fc.Params.Get("email")}, nil
	}

	return syncVerifiedSession(ctx, fc, session)
}

// PKCEFlowStep exchanges an authorization code delivered in the query
// string for a session.
type PKCEFlowStep struct{}

func NewPKCEFlowStep() *PKCEFlowStep {
	return &PKCEFlowStep{}
}

func (s *PKCEFlowStep) Name() string {
	return "pkce"
}

func (s *PKCEFlowStep) Order() int {
	return OrderPKCEFlow
}

func (s *PKCEFlowStep) Matches(fc *FlowContext) bool {
	return fc.Params.Has("code")
}

func (s *PKCEFlowStep) Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error) {
	session, err := fc.Services.Auth.ExchangeCode(ctx, fc.Params.Get("code"))
	if err != nil {
		if authapi.IsExpired(err) {
			slog.Info("Authorization code expired")
			return &StepOutcome{State: StateExpired, Message: MessageExpired}, nil
		}
		slog.Error("Authorization code exchange failed", "error", err)
		return &StepOutcome{State: StateError, Message: MessageGeneric}, nil
	}

	return syncVerifiedSession(ctx, fc, session)
}

// SessionProbeStep is the fallback when no protocol matched: some email
// clients prefetch the link, letting the backend consume it server-side
// before the page ever loads. A confirmed session left behind by that
// consumption still counts as a successful verification.
type SessionProbeStep struct{}

func NewSessionProbeStep() *SessionProbeStep {
	return &SessionProbeStep{}
}

func (s *SessionProbeStep) Name() string {
	return "session_probe"
}

func (s *SessionProbeStep) Order() int {
	return OrderSessionProbe
}

func (s *SessionProbeStep) Matches(fc *FlowContext) bool {
	return true
}

func (s *SessionProbeStep) Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error) {
	if fc.SessionToken == "" {
		// No parameters and no session: nothing to probe, no store calls.
		return &StepOutcome{State: StateError, Message: MessageMissingParams}, nil
	}

	user, err := fc.Services.Auth.GetUser(ctx, fc.SessionToken)
	if err != nil {
		slog.Info("Session probe found no usable session", "error", err)
		return &StepOutcome{State: StateError, Message: MessageMissingParams}, nil
	}

	if user.EmailConfirmedAt == nil {
		// Signed in but the backend has not confirmed the email; a bare
		// visit to the confirm page must not mint a verification.
		return &StepOutcome{State: StateError, Message: MessageMissingParams, Email: user.Email}, nil
	}

	profile, err := fc.Services.Profiles.Sync(ctx, profiles.SyncParams{
		UserID:   user.ID,
		Bearer:   fc.SessionToken,
		Email:    user.Email,
		FullName: user.FullName(),
	})
	if err != nil {
		slog.Error("Profile sync failed after session probe", "user_id", user.ID, "error", err)
		return &StepOutcome{State: StateError, Message: MessageGeneric, Email: user.Email}, nil
	}

	return &StepOutcome{
		State:   StateSuccess,
		Email:   user.Email,
		Profile: profile,
	}, nil
}

// syncVerifiedSession runs the profile synchronizer for a session the
// backend just handed back from a successful code exchange.
func syncVerifiedSession(ctx context.Context, fc *FlowContext, session *authapi.Session) (*StepOutcome, error) {
	if session == nil || session.User == nil {
		slog.Error("Backend verification succeeded without a user payload")
		return &StepOutcome{State: StateError, Message: MessageGeneric}, nil
	}

	profile, err := fc.Services.Profiles.Sync(ctx, profiles.SyncParams{
		UserID:   session.User.ID,
		Bearer:   session.AccessToken,
		Email:    session.User.Email,
		FullName: session.User.FullName(),
	})
	if err != nil {
		slog.Error("Profile sync failed after verification", "user_id", session.User.ID, "error", err)
		return &StepOutcome{State: StateError, Message: MessageGeneric, Email: session.User.Email}, nil
	}

	return &StepOutcome{
		State:   StateSuccess,
		Email:   session.User.Email,
		Session: session,
		Profile: profile,
	}, nil
}
