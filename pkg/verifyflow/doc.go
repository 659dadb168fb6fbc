// Package verifyflow orchestrates email verification for the
// storefront.
//
// The identity backend delivers verification links in three
// non-interchangeable shapes: a ready credential pair in the fragment
// (implicit), an opaque one-time code to exchange (OTP/hash), and a
// PKCE authorization code. Which shape arrives depends on the email
// client and the age of the link, and the backend may even consume the
// link server-side before the page loads. The flow models each shape as
// a Step: a pure classifier over the extracted parameter map paired
// with the handler that drives the backend calls. Classification runs
// once, in priority order, before any network call; exactly one branch
// executes and resolves to a terminal state (success, error, expired).
//
//	deps := &verifyflow.Dependencies{Auth: authClient, Profiles: synchronizer}
//	executor := verifyflow.NewExecutor(verifyflow.DefaultRegistry(), deps)
//
//	result := executor.Execute(ctx, verifyflow.Request{RawURL: link})
//	// result.State, result.CleanURL, result.RedirectAfterMS
//
// Every branch that confirms an identity runs the profile synchronizer
// before reporting success; a sync failure is reported as an error even
// though the server-side confirmation cannot be undone. The resend
// controller lives here too, for the expired/error states.
package verifyflow
