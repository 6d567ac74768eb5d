package ports

import (
	"context"

	"github.com/google/uuid"
)

// RateLimiter is one pass/fail bucket of the shared rate limiter. Validate
// returns nil when the attempt is admitted and *core.RateLimitError (with an
// optional retry hint) when it is not.
type RateLimiter interface {
	Validate(ctx context.Context, key uuid.UUID) error
}
