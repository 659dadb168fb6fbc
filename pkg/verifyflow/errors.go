package verifyflow

import "errors"

var (
	// ErrNoEmail is returned when no email can be determined for a resend
	ErrNoEmail = errors.New("no email known for this session, please sign in again")

	// ErrResendThrottled is returned when the resend budget is exhausted
	ErrResendThrottled = errors.New("too many verification emails sent, please try again later")
)
