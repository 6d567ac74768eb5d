// Package publickeys stores per-device authentication public keys uploaded by
// devices migrating to the newer transport.
package publickeys

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/ports"
)

// MemoryPublicKeyStore is an in-memory PublicKeyStore.
type MemoryPublicKeyStore struct {
	keys map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryPublicKeyStore creates a new in-memory public-key store.
func NewMemoryPublicKeyStore() *MemoryPublicKeyStore {
	return &MemoryPublicKeyStore{
		keys: make(map[string][]byte),
	}
}

// SetPublicKey stores the public key for the given account and device.
func (s *MemoryPublicKeyStore) SetPublicKey(ctx context.Context, aci uuid.UUID, deviceID byte, publicKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(publicKey))
	copy(stored, publicKey)
	s.keys[deviceKey(aci, deviceID)] = stored

	return nil
}

// GetPublicKey returns the stored key for the given account and device, or nil.
func (s *MemoryPublicKeyStore) GetPublicKey(aci uuid.UUID, deviceID byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keys[deviceKey(aci, deviceID)]
}

func deviceKey(aci uuid.UUID, deviceID byte) string {
	return fmt.Sprintf("%s.%d", aci, deviceID)
}

var _ ports.PublicKeyStore = (*MemoryPublicKeyStore)(nil)
