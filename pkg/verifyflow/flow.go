package verifyflow

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
	"github.com/fernway/storefront/pkg/urlparams"
)

// State is a terminal UI state of the verification flow. Once the flow
// leaves loading it never transitions again.
type State string

const (
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
	StateExpired State = "expired"
)

// Fixed user-visible message set. Raw backend error text is never shown
// without translation into one of these.
const (
	MessageSuccess       = "Your email has been verified. Welcome to the store!"
	MessageExpired       = "This verification link has expired. You can request a new one below."
	MessageGeneric       = "We couldn't verify your email. Please try again or request a new link."
	MessageMissingParams = "Missing verification parameters. Please use the link from your email."
)

// DefaultRedirectDelay is how long the UI shows the success message
// before sending the user home.
const DefaultRedirectDelay = 2500 * time.Millisecond

// Request is one verification attempt: the inbound link and, when the
// browser already holds a session cookie, its access token.
type Request struct {
	RawURL       string
	SessionToken string
}

// Result is the terminal outcome of one orchestration pass. CleanURL is
// always populated so the UI strips the consumed parameters from the
// address bar whatever the outcome; RedirectAfterMS is set on success
// only.
type Result struct {
	State           State             `json:"state"`
	Message         string            `json:"message"`
	Protocol        string            `json:"protocol,omitempty"`
	CleanURL        string            `json:"clean_url"`
	RedirectAfterMS int               `json:"redirect_after_ms,omitempty"`
	Email           string            `json:"email,omitempty"`
	Session         *authapi.Session  `json:"session,omitempty"`
	Profile         *profiles.Profile `json:"profile,omitempty"`
}

// AuthClient is the slice of the identity backend the flow consumes.
type AuthClient interface {
	VerifyOTP(ctx context.Context, req authapi.VerifyOTPRequest) (*authapi.Session, error)
	ExchangeCode(ctx context.Context, code string) (*authapi.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*authapi.Session, error)
	GetUser(ctx context.Context, accessToken string) (*authapi.User, error)
	Resend(ctx context.Context, req authapi.ResendRequest) error
}

// ProfileSyncer marks the profile verified; implemented by
// profiles.Synchronizer.
type ProfileSyncer interface {
	Sync(ctx context.Context, params profiles.SyncParams) (*profiles.Profile, error)
}

// Dependencies contains the services verification steps call.
type Dependencies struct {
	Auth     AuthClient
	Profiles ProfileSyncer
	Metrics  *Collector
}

// FlowContext carries one attempt's parameters through classification
// and the single step that consumes them. It is request-scoped and
// discarded after the pass.
type FlowContext struct {
	Params       urlparams.Values
	SessionToken string
	Services     *Dependencies
}

// StepOutcome is the result of executing a verification step.
type StepOutcome struct {
	State   State
	Message string
	Email   string
	Session *authapi.Session
	Profile *profiles.Profile
}

// Step is one verification protocol: a pure classifier over the
// parameter map paired with the handler that drives the backend calls.
// Matches must not perform I/O; classification is evaluated before any
// network call.
type Step interface {
	// Name returns the protocol name, used for logs and metrics.
	Name() string

	// Order returns the classification priority (lower matches first).
	Order() int

	// Matches reports whether this protocol applies to the parameters.
	Matches(fc *FlowContext) bool

	// Execute drives the protocol and resolves a terminal outcome.
	Execute(ctx context.Context, fc *FlowContext) (*StepOutcome, error)
}

// StepRegistry manages and orders verification steps. Adding a protocol
// is a registry entry, not a control-flow change.
type StepRegistry struct {
	steps []Step
}

// NewStepRegistry creates an empty step registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{}
}

// AddStep adds a step to the registry.
func (r *StepRegistry) AddStep(step Step) *StepRegistry {
	r.steps = append(r.steps, step)
	return r
}

// GetOrderedSteps returns the steps sorted by classification priority.
func (r *StepRegistry) GetOrderedSteps() []Step {
	ordered := make([]Step, len(r.steps))
	copy(ordered, r.steps)

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})

	return ordered
}

// DefaultRegistry returns the production protocol set in priority
// order: error passthrough, implicit, OTP, PKCE, session probe.
func DefaultRegistry() *StepRegistry {
	return NewStepRegistry().
		AddStep(NewErrorPassthroughStep()).
		AddStep(NewImplicitFlowStep()).
		AddStep(NewOTPFlowStep()).
		AddStep(NewPKCEFlowStep()).
		AddStep(NewSessionProbeStep())
}

// Executor runs one verification attempt to a terminal state.
type Executor struct {
	registry      *StepRegistry
	services      *Dependencies
	redirectDelay time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRedirectDelay sets the post-success redirect delay.
func WithRedirectDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.redirectDelay = d
	}
}

// NewExecutor creates a flow executor with the given steps and services.
func NewExecutor(registry *StepRegistry, services *Dependencies, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:      registry,
		services:      services,
		redirectDelay: DefaultRedirectDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute classifies the attempt and runs exactly one protocol branch.
// Classification is synchronous and happens once, before any network
// call, so an attempt is never in two branches at once. Every failure,
// network included, is mapped to a terminal state; nothing escapes.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	fc := &FlowContext{
		Params:       urlparams.Extract(req.RawURL),
		SessionToken: req.SessionToken,
		Services:     e.services,
	}

	result := Result{
		State:    StateError,
		Message:  MessageMissingParams,
		CleanURL: urlparams.StripVerification(req.RawURL),
	}

	var chosen Step
	for _, step := range e.registry.GetOrderedSteps() {
		if step.Matches(fc) {
			chosen = step
			break
		}
	}
	if chosen == nil {
		// The default registry ends in an always-matching probe; an empty
		// or exhausted registry resolves like a parameterless link.
		e.services.Metrics.RecordVerification("none", result.State)
		return result
	}

	result.Protocol = chosen.Name()

	outcome, err := chosen.Execute(ctx, fc)
	if err != nil || outcome == nil {
		slog.Error("Verification step failed", "step", chosen.Name(), "error", err)
		outcome = &StepOutcome{State: StateError, Message: MessageGeneric}
	}

	result.State = outcome.State
	result.Message = outcome.Message
	result.Email = outcome.Email
	result.Session = outcome.Session
	result.Profile = outcome.Profile

	if result.State == StateSuccess {
		if result.Message == "" {
			result.Message = MessageSuccess
		}
		result.RedirectAfterMS = int(e.redirectDelay / time.Millisecond)
	}

	e.services.Metrics.RecordVerification(chosen.Name(), result.State)
	return result
}
