package store

import (
	"context"
	"sync"
	"time"

	"github.com/quillwire/devlink/ports"
)

// MemoryReplayStore is an in-memory implementation of the ReplayStore interface,
// intended for tests and single-instance deployments.
type MemoryReplayStore struct {
	consumed map[string]time.Time
	mu       sync.Mutex
}

// NewMemoryReplayStore creates a new in-memory replay store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{
		consumed: make(map[string]time.Time),
	}
}

// IsConsumed checks whether the token has an unexpired consumption record.
func (s *MemoryReplayStore) IsConsumed(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.consumed[usedTokenKey(token)]
	if !exists {
		return false, nil
	}

	if time.Now().After(expiry) {
		delete(s.consumed, usedTokenKey(token))
		return false, nil
	}

	return true, nil
}

// Claim records the token as consumed if no unexpired record exists. The mutex
// makes the check-and-set atomic, mirroring Redis SET NX.
func (s *MemoryReplayStore) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usedTokenKey(token)

	if expiry, exists := s.consumed[key]; exists && time.Now().Before(expiry) {
		return false, nil
	}

	s.consumed[key] = time.Now().Add(ttl)
	return true, nil
}

var _ ports.ReplayStore = (*MemoryReplayStore)(nil)
