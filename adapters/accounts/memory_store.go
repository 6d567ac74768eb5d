// Package accounts provides an in-memory implementation of the account store
// boundary, used by tests and single-instance deployments. The real aggregate is
// owned by an external service; this adapter honors the same contract: AddDevice
// and RemoveDevice apply atomically and are the only device-list mutations.
package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/ports"
)

// MemoryAccountStore is an in-memory AccountStore.
type MemoryAccountStore struct {
	accounts map[uuid.UUID]*core.Account
	mu       sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[uuid.UUID]*core.Account),
	}
}

// Put inserts or replaces an account. Intended for seeding.
func (s *MemoryAccountStore) Put(account *core.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := cloneAccount(account)
	s.accounts[copied.ACI] = copied
}

// GetByAccountIdentifier resolves an ACI to a copy of the stored account.
func (s *MemoryAccountStore) GetByAccountIdentifier(ctx context.Context, aci uuid.UUID) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[aci]
	if !exists {
		return nil, core.ErrAccountNotFound
	}

	return cloneAccount(account), nil
}

// AddDevice atomically attaches a new device built from spec, assigning the
// lowest unused device id.
func (s *MemoryAccountStore) AddDevice(ctx context.Context, aci uuid.UUID, spec core.DeviceSpec) (*core.Account, *core.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[aci]
	if !exists {
		return nil, nil, core.ErrAccountNotFound
	}

	now := time.Now()
	device := core.Device{
		ID:                 account.NextDeviceID(),
		Name:               spec.Name,
		AuthCredentialHash: spec.AuthCredentialHash,
		UserAgent:          spec.UserAgent,
		Capabilities:       spec.Capabilities,
		RegistrationID:     spec.RegistrationID,
		PNIRegistrationID:  spec.PNIRegistrationID,
		FetchesMessages:    spec.FetchesMessages,
		APNToken:           spec.APNToken,
		GCMToken:           spec.GCMToken,

		ACISignedPreKey:       spec.ACISignedPreKey,
		PNISignedPreKey:       spec.PNISignedPreKey,
		ACIPqLastResortPreKey: spec.ACIPqLastResortPreKey,
		PNIPqLastResortPreKey: spec.PNIPqLastResortPreKey,

		Created:  now,
		LastSeen: now,
	}

	account.Devices = append(account.Devices, device)

	updated := cloneAccount(account)
	return updated, updated.GetDevice(device.ID), nil
}

// RemoveDevice atomically detaches the device with the given id.
func (s *MemoryAccountStore) RemoveDevice(ctx context.Context, aci uuid.UUID, deviceID byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[aci]
	if !exists {
		return core.ErrAccountNotFound
	}

	for i := range account.Devices {
		if account.Devices[i].ID == deviceID {
			account.Devices = append(account.Devices[:i], account.Devices[i+1:]...)
			return nil
		}
	}

	return core.ErrDeviceNotFound
}

// UpdateDevice applies update to the device with the given id.
func (s *MemoryAccountStore) UpdateDevice(ctx context.Context, aci uuid.UUID, deviceID byte, update func(*core.Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[aci]
	if !exists {
		return core.ErrAccountNotFound
	}

	device := account.GetDevice(deviceID)
	if device == nil {
		return core.ErrDeviceNotFound
	}

	update(device)
	return nil
}

func cloneAccount(account *core.Account) *core.Account {
	copied := *account
	copied.Devices = make([]core.Device, len(account.Devices))
	copy(copied.Devices, account.Devices)
	return &copied
}

var _ ports.AccountStore = (*MemoryAccountStore)(nil)
