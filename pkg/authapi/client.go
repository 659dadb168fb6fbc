// Package authapi is an HTTP client for the hosted identity backend's
// auth REST API: one-time-code verification, token exchange, session
// refresh, user lookup and verification resend.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client calls the identity backend. The API key authenticates the
// application; per-user calls additionally carry the user's bearer
// token.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Timeouts are the
// transport's concern; the backend client adds none of its own.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// NewClient creates a client for the auth API rooted at baseURL
// (".../auth/v1").
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   http.DefaultClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyOTP exchanges a one-time code for a session and user.
func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*Session, error) {
	body, err := c.post(ctx, "/verify", nil, req, "")
	if err != nil {
		return nil, err
	}
	return decodeSession(body, c.now())
}

// ExchangeCode performs the PKCE authorization-code exchange.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	body, err := c.post(ctx, "/token", url.Values{"grant_type": {"pkce"}}, map[string]string{"auth_code": code}, "")
	if err != nil {
		return nil, err
	}
	return decodeSession(body, c.now())
}

// RefreshSession establishes a server-side session from a refresh
// token. Used by the implicit flow to promote a URL-delivered token
// pair into a real backend session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body, err := c.post(ctx, "/token", url.Values{"grant_type": {"refresh_token"}}, map[string]string{"refresh_token": refreshToken}, "")
	if err != nil {
		return nil, err
	}
	return decodeSession(body, c.now())
}

// PasswordGrant signs in with email and password.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*Session, error) {
	body, err := c.post(ctx, "/token", url.Values{"grant_type": {"password"}}, map[string]string{"email": email, "password": password}, "")
	if err != nil {
		return nil, err
	}
	return decodeSession(body, c.now())
}

// SignUp registers a new account. When the backend requires email
// confirmation the returned session carries the user but no tokens.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	body, err := c.post(ctx, "/signup", nil, req, "")
	if err != nil {
		return nil, err
	}
	return decodeSession(body, c.now())
}

// GetUser returns the user the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	body, err := c.do(ctx, http.MethodGet, "/user", nil, nil, accessToken)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, nil, accessToken)
	return err
}

// Resend asks the backend to send a fresh verification link scoped to
// the given redirect target.
func (c *Client) Resend(ctx context.Context, req ResendRequest) error {
	var query url.Values
	if req.RedirectTo != "" {
		query = url.Values{"redirect_to": {req.RedirectTo}}
	}
	_, err := c.post(ctx, "/resend", query, req, "")
	return err
}

func (c *Client) post(ctx context.Context, path string, query url.Values, payload any, bearer string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, query, payload, bearer)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, bearer string) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		if msg := parsed.message(); msg != "" {
			apiErr.Message = msg
		}
	}

	return apiErr
}
