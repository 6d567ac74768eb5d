package ports

import (
	"context"
	"time"
)

// ReplayStore tracks consumed link tokens in a store shared across instances.
type ReplayStore interface {
	// IsConsumed reports whether the token has already been claimed.
	IsConsumed(ctx context.Context, token string) (bool, error)

	// Claim marks the token consumed if and only if it has not been claimed
	// before, with the given expiry. Returns true when this caller won the claim.
	// This is the sole consumption gate; concurrent claimers see exactly one true.
	Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
}
