package verifyflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernway/storefront/pkg/authapi"
)

func TestResendWithKnownEmail(t *testing.T) {
	auth := newFakeAuth()
	var got authapi.ResendRequest
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error {
		got = req
		return nil
	}

	controller := NewResendController(auth, WithRedirectTarget("https://shop.example.com/auth/confirm"))

	err := controller.Resend(context.Background(), ResendParams{Email: "buyer@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", got.Email)
	assert.Equal(t, authapi.OTPTypeSignup, got.Type)
	assert.Equal(t, "https://shop.example.com/auth/confirm", got.RedirectTo)
}

func TestResendFallsBackToSessionLookup(t *testing.T) {
	auth := newFakeAuth()
	auth.getUserFn = func(ctx context.Context, accessToken string) (*authapi.User, error) {
		require.Equal(t, "at1", accessToken)
		return &authapi.User{ID: uuid.New(), Email: "buyer@example.com"}, nil
	}
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error {
		require.Equal(t, "buyer@example.com", req.Email)
		return nil
	}

	controller := NewResendController(auth)

	err := controller.Resend(context.Background(), ResendParams{AccessToken: "at1"})
	assert.NoError(t, err)
}

func TestResendWithoutAnyEmail(t *testing.T) {
	controller := NewResendController(newFakeAuth())

	err := controller.Resend(context.Background(), ResendParams{})
	assert.ErrorIs(t, err, ErrNoEmail)
}

func TestResendLookupFailureMeansNoEmail(t *testing.T) {
	auth := newFakeAuth()
	auth.getUserFn = func(ctx context.Context, accessToken string) (*authapi.User, error) {
		return nil, errors.New("session revoked")
	}

	controller := NewResendController(auth)

	err := controller.Resend(context.Background(), ResendParams{AccessToken: "stale"})
	assert.ErrorIs(t, err, ErrNoEmail)
}

func TestResendThrottling(t *testing.T) {
	auth := newFakeAuth()
	sent := 0
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error {
		sent++
		return nil
	}

	controller := NewResendController(auth, WithResendBudget(2, time.Hour))

	params := ResendParams{Email: "buyer@example.com"}
	require.NoError(t, controller.Resend(context.Background(), params))
	require.NoError(t, controller.Resend(context.Background(), params))

	err := controller.Resend(context.Background(), params)
	assert.ErrorIs(t, err, ErrResendThrottled)
	assert.Equal(t, 2, sent, "throttled attempts must not reach the backend")
}

func TestResendZeroBudgetKeepsDefault(t *testing.T) {
	auth := newFakeAuth()
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error { return nil }

	controller := NewResendController(auth, WithResendBudget(0, time.Hour))

	err := controller.Resend(context.Background(), ResendParams{Email: "buyer@example.com"})
	assert.NoError(t, err, "a zero limit must fall back to the default budget, not divide by zero")
}

func TestResendBackendFailureIsWrapped(t *testing.T) {
	auth := newFakeAuth()
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error {
		return &authapi.APIError{Status: 500, Message: "smtp down"}
	}

	controller := NewResendController(auth)

	err := controller.Resend(context.Background(), ResendParams{Email: "buyer@example.com"})
	require.Error(t, err)

	var apiErr *authapi.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestResendTypeOverride(t *testing.T) {
	auth := newFakeAuth()
	auth.resendFn = func(ctx context.Context, req authapi.ResendRequest) error {
		require.Equal(t, authapi.OTPTypeEmailChange, req.Type)
		return nil
	}

	controller := NewResendController(auth, WithResendType(authapi.OTPTypeEmailChange))

	err := controller.Resend(context.Background(), ResendParams{Email: "buyer@example.com"})
	assert.NoError(t, err)
}
