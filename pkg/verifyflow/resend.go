package verifyflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernway/storefront/pkg/authapi"
	"golang.org/x/time/rate"
)

// Default resend budget.
const (
	DefaultResendLimit  = 3
	DefaultResendWindow = 1 * time.Hour
)

// ResendController issues a fresh verification link once the flow lands
// on an expired or error state. Concurrent calls are not deduplicated
// here beyond the rate budget; disabling the trigger while a call is
// outstanding is the UI's job.
type ResendController struct {
	auth       AuthClient
	limiter    *rate.Limiter
	redirectTo string
	otpType    authapi.OTPType
}

// ResendOption configures a ResendController.
type ResendOption func(*ResendController)

// WithResendBudget sets how many resends are allowed per window. A
// non-positive limit or window keeps the default budget.
func WithResendBudget(limit int, window time.Duration) ResendOption {
	return func(c *ResendController) {
		if limit <= 0 || window <= 0 {
			slog.Warn("Invalid resend budget, keeping default", "limit", limit, "window", window)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	}
}

// WithRedirectTarget sets the redirect target embedded in the new link;
// it should be the same confirm route the original flow used.
func WithRedirectTarget(target string) ResendOption {
	return func(c *ResendController) {
		c.redirectTo = target
	}
}

// WithResendType overrides the verification type requested.
func WithResendType(t authapi.OTPType) ResendOption {
	return func(c *ResendController) {
		c.otpType = t
	}
}

// NewResendController creates a resend controller.
func NewResendController(auth AuthClient, opts ...ResendOption) *ResendController {
	c := &ResendController{
		auth:    auth,
		limiter: rate.NewLimiter(rate.Every(DefaultResendWindow/DefaultResendLimit), DefaultResendLimit),
		otpType: authapi.OTPTypeSignup,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResendParams carry what is known about the current user: the email
// from the last successful token decode when there was one, and the
// session's access token for a fresh who-am-I lookup otherwise.
type ResendParams struct {
	Email       string
	AccessToken string
}

// Resend requests a new verification link for the current session's
// email. When no email can be determined the caller gets ErrNoEmail and
// should ask the user to sign in again.
func (c *ResendController) Resend(ctx context.Context, params ResendParams) error {
	email := params.Email
	if email == "" && params.AccessToken != "" {
		user, err := c.auth.GetUser(ctx, params.AccessToken)
		if err != nil {
			slog.Warn("Resend who-am-I lookup failed", "error", err)
		} else {
			email = user.Email
		}
	}
	if email == "" {
		return ErrNoEmail
	}

	if !c.limiter.Allow() {
		slog.Warn("Resend throttled", "email", email)
		return ErrResendThrottled
	}

	err := c.auth.Resend(ctx, authapi.ResendRequest{
		Type:       c.otpType,
		Email:      email,
		RedirectTo: c.redirectTo,
	})
	if err != nil {
		return fmt.Errorf("failed to resend verification email: %w", err)
	}

	slog.Info("Verification email resent", "email", email)
	return nil
}
