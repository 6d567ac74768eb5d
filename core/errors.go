package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTokenExpired is returned when a link token's validity window has passed
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidToken is returned when a link token does not parse
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidSignature is returned when a link token's signature does not verify
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnauthorized is returned when the caller lacks permission for the action
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned for any bad, expired, consumed, or unresolvable link
	// token. The reasons are deliberately collapsed so an unauthenticated caller
	// cannot probe token state.
	ErrForbidden = errors.New("forbidden")

	// ErrCapabilityDowngrade is returned when a new device would drop a capability
	// every existing device on the account supports
	ErrCapabilityDowngrade = errors.New("capability downgrade")

	// ErrAccountNotFound is returned by account stores for unknown identifiers
	ErrAccountNotFound = errors.New("account not found")

	// ErrDeviceNotFound is returned by account stores for unknown device ids
	ErrDeviceNotFound = errors.New("device not found")

	// ErrStoreOperationFailed is returned when a shared-store operation fails
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// DeviceLimitError is returned when an account has reached its device ceiling.
type DeviceLimitError struct {
	Current int
	Max     int
}

func (e *DeviceLimitError) Error() string {
	return fmt.Sprintf("device limit exceeded: %d of %d devices", e.Current, e.Max)
}

// RateLimitError is returned when the rate limiter rejects an attempt. RetryAfter
// is zero when the limiter has no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// UnprocessableError is returned when a link request fails validation.
type UnprocessableError struct {
	Reason string
}

func (e *UnprocessableError) Error() string {
	return e.Reason
}
