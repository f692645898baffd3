package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken occurs when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCodeExpired occurs when no one-time code is set or its window has passed.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrCodeMismatch occurs when the submitted one-time code does not match.
	ErrCodeMismatch = errors.New("one-time code mismatch")
	// ErrDelivery occurs when an outbound email could not be dispatched.
	ErrDelivery = errors.New("delivery failed")
	// ErrInvalidToken occurs when a bearer token fails signature or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTooManyAttempts occurs when the attempt limiter window is exhausted.
	ErrTooManyAttempts = errors.New("too many attempts")
)
