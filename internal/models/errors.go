package models

import "errors"

// Gatekeeper rejection taxonomy. Terminal responses carry one of these so
// callers can classify a rejection with errors.Is.
var (
	// ErrRateLimitExceeded is retryable after the Retry-After interval (HTTP 429).
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCSRFValidationFailed is not retryable until the caller fixes its origin (HTTP 403).
	ErrCSRFValidationFailed = errors.New("csrf validation failed")

	// ErrContentTypeInvalid requires the caller to resend as application/json (HTTP 400).
	ErrContentTypeInvalid = errors.New("content type invalid")
)
