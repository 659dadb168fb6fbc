package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RESTRepository talks to the hosted backend's row API. Requests ask for
// the resulting row back ("Prefer: return=representation") so the caller
// can inspect it without a second round trip, and request a single
// object so the store's 406 response distinguishes a policy-rejected or
// zero-row write from a transport failure.
type RESTRepository struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// RESTOption configures a RESTRepository.
type RESTOption func(*RESTRepository)

// WithRESTHTTPClient sets the underlying HTTP client.
func WithRESTHTTPClient(httpc *http.Client) RESTOption {
	return func(r *RESTRepository) {
		r.httpc = httpc
	}
}

// NewRESTRepository creates a repository for the row API rooted at
// baseURL (".../rest/v1").
func NewRESTRepository(baseURL, apiKey string, opts ...RESTOption) *RESTRepository {
	r := &RESTRepository{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarkVerified implements Repository.MarkVerified.
func (r *RESTRepository) MarkVerified(ctx context.Context, bearer string, id uuid.UUID, verifiedAt time.Time) (*Profile, error) {
	payload := map[string]any{
		"email_verified": true,
		"verified_at":    verifiedAt.UTC().Format(time.RFC3339),
	}
	return r.writeRow(ctx, http.MethodPatch, "/profiles?id=eq."+id.String(), bearer, payload)
}

// GetByID implements Repository.GetByID.
func (r *RESTRepository) GetByID(ctx context.Context, bearer string, id uuid.UUID) (*Profile, error) {
	profile, err := r.readRow(ctx, "/profiles?id=eq."+id.String()+"&select=*", bearer)
	if err != nil {
		// For a read, zero rows means the profile does not exist.
		if errors.Is(err, ErrProfileNotAcceptable) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// Create implements Repository.Create.
func (r *RESTRepository) Create(ctx context.Context, bearer string, profile Profile) (*Profile, error) {
	payload := map[string]any{
		"id":             profile.ID.String(),
		"email":          profile.Email,
		"full_name":      profile.FullName,
		"email_verified": profile.EmailVerified,
	}
	if profile.VerifiedAt != nil {
		payload["verified_at"] = profile.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return r.writeRow(ctx, http.MethodPost, "/profiles", bearer, payload)
}

// UpdateFullName implements Repository.UpdateFullName.
func (r *RESTRepository) UpdateFullName(ctx context.Context, bearer string, id uuid.UUID, fullName string) (*Profile, error) {
	payload := map[string]any{"full_name": fullName}
	return r.writeRow(ctx, http.MethodPatch, "/profiles?id=eq."+id.String(), bearer, payload)
}

func (r *RESTRepository) writeRow(ctx context.Context, method, path, bearer string, payload any) (*Profile, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	r.setHeaders(req, bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return r.send(req)
}

func (r *RESTRepository) readRow(ctx context.Context, path, bearer string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	r.setHeaders(req, bearer)

	return r.send(req)
}

func (r *RESTRepository) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("apikey", r.apiKey)
	if bearer == "" {
		bearer = r.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	// Single-object representation: zero or multiple rows become a 406
	// instead of an empty array.
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")
}

func (r *RESTRepository) send(req *http.Request) (*Profile, error) {
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile store request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile store response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrProfileNotFound
	case resp.StatusCode == http.StatusNotAcceptable:
		return nil, ErrProfileNotAcceptable
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrProfileConflict
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("profile store returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile row: %w", err)
	}
	return &profile, nil
}
