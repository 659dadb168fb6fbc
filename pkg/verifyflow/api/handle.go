package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
	"github.com/fernway/storefront/pkg/sessionctx"
	"github.com/fernway/storefront/pkg/verifyflow"
)

// AccessTokenCookie is where the session's access token lives between
// requests.
const AccessTokenCookie = "access_token"

// DefaultConfirmPath is the page the verification link lands on.
const DefaultConfirmPath = "/auth/confirm"

// Handler serves the verification and session endpoints.
type Handler struct {
	executor    *verifyflow.Executor
	resend      *verifyflow.ResendController
	session     *sessionctx.SessionContext
	metrics     *verifyflow.Collector
	confirmPath string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithConfirmPath overrides the confirm page path used when the inbound
// link is reassembled.
func WithConfirmPath(path string) HandlerOption {
	return func(h *Handler) {
		h.confirmPath = path
	}
}

// WithMetrics attaches the outcome collector.
func WithMetrics(metrics *verifyflow.Collector) HandlerOption {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// NewHandler creates a new verification API handler
func NewHandler(executor *verifyflow.Executor, resend *verifyflow.ResendController, session *sessionctx.SessionContext, opts ...HandlerOption) *Handler {
	h := &Handler{
		executor:    executor,
		resend:      resend,
		session:     session,
		confirmPath: DefaultConfirmPath,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the API. The resend and profile endpoints require a
// verified bearer token; everything else manages its own access.
func Routes(h *Handler, auth *jwtauth.JWTAuth) chi.Router {
	r := chi.NewRouter()

	r.Get("/auth/confirm", h.Confirm)
	r.Post("/auth/signup", h.SignUp)
	r.Post("/auth/signin", h.SignIn)
	r.Post("/auth/signout", h.SignOut)
	r.Post("/auth/events", h.AuthEvents)
	r.Get("/session", h.Session)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(auth))
		r.Use(jwtauth.Authenticator(auth))
		r.Post("/auth/resend", h.ResendVerification)
		r.Put("/profile", h.UpdateProfile)
	})

	return r
}

// Confirm handles GET /auth/confirm. The caller relays the landing URL
// as its own query string; the fragment, which browsers never send,
// rides in a "fragment" parameter and is folded back before
// orchestration.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fragment := query.Get("fragment")
	query.Del("fragment")

	rawURL := h.confirmPath
	if encoded := query.Encode(); encoded != "" {
		rawURL += "?" + encoded
	}
	if fragment != "" {
		rawURL += "#" + fragment
	}

	result := h.executor.Execute(r.Context(), verifyflow.Request{
		RawURL:       rawURL,
		SessionToken: sessionToken(r),
	})

	response := ConfirmResponse{
		State:           string(result.State),
		Message:         result.Message,
		Protocol:        result.Protocol,
		CleanURL:        result.CleanURL,
		RedirectAfterMS: result.RedirectAfterMS,
		Email:           result.Email,
		Profile:         profileView(result.Profile),
	}

	status := http.StatusOK
	switch result.State {
	case verifyflow.StateExpired:
		status = http.StatusGone
	case verifyflow.StateError:
		status = http.StatusUnprocessableEntity
	}

	render.Status(r, status)
	render.JSON(w, r, response)
}

// ResendVerification handles POST /auth/resend
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if r.Body != nil {
		// Body is optional; a bare POST resends to the session's email.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := h.resend.Resend(r.Context(), verifyflow.ResendParams{
		Email:       req.Email,
		AccessToken: sessionToken(r),
	})
	if err != nil {
		status := http.StatusInternalServerError
		message := "An error occurred while sending verification email"

		switch {
		case errors.Is(err, verifyflow.ErrNoEmail):
			status = http.StatusUnauthorized
			message = err.Error()
		case errors.Is(err, verifyflow.ErrResendThrottled):
			status = http.StatusTooManyRequests
			message = err.Error()
		default:
			slog.Error("Failed to resend verification email", "error", err)
		}

		h.metrics.RecordResend("error")
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{Error: message})
		return
	}

	h.metrics.RecordResend("sent")
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ResendVerificationResponse{
		Message: "Verification email sent successfully",
	})
}

// Session handles GET /session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Resolve(r.Context(), sessionToken(r))
	render.JSON(w, r, snapshotResponse(snap))
}

// SignUp handles POST /auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Email and password are required"})
		return
	}

	snap, err := h.session.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		renderAuthError(w, r, "Failed to sign up", err)
		return
	}

	setSessionCookie(w, snap)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, snapshotResponse(snap))
}

// SignIn handles POST /auth/signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	snap, err := h.session.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		renderAuthError(w, r, "Failed to sign in", err)
		return
	}

	setSessionCookie(w, snap)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, snapshotResponse(snap))
}

// SignOut handles POST /auth/signout
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		slog.Warn("Sign-out finished with a backend error", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"message": "Signed out"})
}

// UpdateProfile handles PUT /profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.FullName == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Full name is required"})
		return
	}

	snap, err := h.session.UpdateProfile(r.Context(), req.FullName)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: "Profile not found"})
			return
		}
		renderAuthError(w, r, "Failed to update profile", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, snapshotResponse(snap))
}

// AuthEvents handles POST /auth/events, the backend's webhook for
// session state changes made elsewhere (another tab, admin console).
func (h *Handler) AuthEvents(w http.ResponseWriter, r *http.Request) {
	var req AuthEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Event == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Event is required"})
		return
	}

	var session *authapi.Session
	if req.Session != nil {
		session = &authapi.Session{
			AccessToken:  req.Session.AccessToken,
			RefreshToken: req.Session.RefreshToken,
		}
	}

	h.session.HandleAuthEvent(r.Context(), sessionctx.Event(req.Event), session)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"message": "Event accepted"})
}

// sessionToken pulls the access token from the session cookie, falling
// back to the Authorization header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return jwtauth.TokenFromHeader(r)
}

func setSessionCookie(w http.ResponseWriter, snap sessionctx.Snapshot) {
	if snap.Session == nil || snap.Session.AccessToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    snap.Session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func profileView(p *profiles.Profile) *ProfileView {
	if p == nil {
		return nil
	}
	view := &ProfileView{}
	if err := copier.Copy(view, p); err != nil {
		slog.Error("Failed to map profile", "error", err)
		return nil
	}
	return view
}

func snapshotResponse(snap sessionctx.Snapshot) SessionResponse {
	resp := SessionResponse{
		Profile: profileView(snap.Profile),
		Loading: snap.Loading,
	}
	if snap.User != nil {
		resp.Email = snap.User.Email
		resp.EmailVerified = snap.User.EmailConfirmedAt != nil
	}
	return resp
}

// renderAuthError maps a backend failure to a response, passing the
// backend's status through when it is a client-side one.
func renderAuthError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError

	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
		message = apiErr.Message
	} else {
		slog.Error(message, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
