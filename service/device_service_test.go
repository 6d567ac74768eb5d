package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillwire/devlink/adapters/accounts"
	"github.com/quillwire/devlink/adapters/publickeys"
	"github.com/quillwire/devlink/adapters/store"
	"github.com/quillwire/devlink/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fakeLimiter struct {
	err   error
	calls atomic.Int32
}

func (f *fakeLimiter) Validate(ctx context.Context, key uuid.UUID) error {
	f.calls.Add(1)
	return f.err
}

type fakeValidator struct {
	valid bool
}

func (f *fakeValidator) ValidatePreKeySignatures(identityKey []byte, preKeys []core.SignedPreKey) bool {
	return f.valid
}

type fakeEvents struct {
	mu      sync.Mutex
	linked  []byte
	removed []byte
	err     error
}

func (f *fakeEvents) PublishDeviceLinked(ctx context.Context, aci uuid.UUID, deviceID byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked = append(f.linked, deviceID)
	return f.err
}

func (f *fakeEvents) PublishDeviceRemoved(ctx context.Context, aci uuid.UUID, deviceID byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, deviceID)
	return f.err
}

// --- fixture ---

type fixture struct {
	service    *DeviceService
	accounts   *accounts.MemoryAccountStore
	replay     *store.MemoryReplayStore
	allocate   *fakeLimiter
	verify     *fakeLimiter
	validator  *fakeValidator
	publicKeys *publickeys.MemoryPublicKeyStore
	events     *fakeEvents
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	if cfg.LinkDeviceSecret == nil {
		cfg.LinkDeviceSecret = []byte("test-link-device-secret")
	}

	f := &fixture{
		accounts:   accounts.NewMemoryAccountStore(),
		replay:     store.NewMemoryReplayStore(),
		allocate:   &fakeLimiter{},
		verify:     &fakeLimiter{},
		validator:  &fakeValidator{valid: true},
		publicKeys: publickeys.NewMemoryPublicKeyStore(),
		events:     &fakeEvents{},
	}

	svc, err := NewDeviceService(cfg, f.accounts, f.replay, RateLimiters{
		AllocateDevice: f.allocate,
		VerifyDevice:   f.verify,
	}, f.validator, f.publicKeys, f.events)
	require.NoError(t, err)

	f.service = svc
	return f
}

func makeAccount(deviceCount int, capabilities core.DeviceCapabilities) *core.Account {
	account := &core.Account{
		ACI:            uuid.New(),
		PNI:            uuid.New(),
		Number:         "+14155550101",
		ACIIdentityKey: []byte("aci-identity"),
		PNIIdentityKey: []byte("pni-identity"),
	}

	for i := 0; i < deviceCount; i++ {
		account.Devices = append(account.Devices, core.Device{
			ID:           core.PrimaryDeviceID + byte(i),
			Name:         "device",
			Capabilities: capabilities,
		})
	}

	return account
}

func makeLinkRequest(verificationCode string) core.LinkDeviceRequest {
	return core.LinkDeviceRequest{
		VerificationCode: verificationCode,
		AccountAttributes: core.AccountAttributes{
			Name:              "new device",
			RegistrationID:    12345,
			PNIRegistrationID: 54321,
			FetchesMessages:   true,
			Capabilities:      &core.DeviceCapabilities{DeleteSync: true, VersionedExpirationTimer: true},
		},
		ActivationRequest: core.DeviceActivationRequest{
			ACISignedPreKey:       core.SignedPreKey{KeyID: 1, PublicKey: []byte("aci-spk"), Signature: []byte("sig")},
			PNISignedPreKey:       core.SignedPreKey{KeyID: 2, PublicKey: []byte("pni-spk"), Signature: []byte("sig")},
			ACIPqLastResortPreKey: core.SignedPreKey{KeyID: 3, PublicKey: []byte("aci-pq"), Signature: []byte("sig")},
			PNIPqLastResortPreKey: core.SignedPreKey{KeyID: 4, PublicKey: []byte("pni-pq"), Signature: []byte("sig")},
		},
	}
}

// --- IssueLinkToken ---

func TestIssueLinkTokenRequiresPrimary(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(2, core.DeviceCapabilities{})
	f.accounts.Put(account)

	_, err := f.service.IssueLinkToken(context.Background(), account, core.PrimaryDeviceID+1)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Zero(t, f.allocate.calls.Load(), "unauthorized caller must not consume rate-limit budget")
}

func TestIssueLinkTokenRateLimited(t *testing.T) {
	f := newFixture(t, Config{})
	f.allocate.err = &core.RateLimitError{RetryAfter: 30 * time.Second}

	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	_, err := f.service.IssueLinkToken(context.Background(), account, core.PrimaryDeviceID)

	var rateLimited *core.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 30*time.Second, rateLimited.RetryAfter)
}

func TestIssueLinkTokenDeviceCeiling(t *testing.T) {
	f := newFixture(t, Config{MaxDeviceOverrides: map[string]int{"+14155550101": 2}})

	account := makeAccount(2, core.DeviceCapabilities{})
	f.accounts.Put(account)

	_, err := f.service.IssueLinkToken(context.Background(), account, core.PrimaryDeviceID)

	var limitErr *core.DeviceLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Current)
	assert.Equal(t, 2, limitErr.Max)
}

func TestIssueLinkTokenSucceedsBelowCeiling(t *testing.T) {
	f := newFixture(t, Config{MaxDeviceOverrides: map[string]int{"+14155550101": 2}})

	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded, err := f.service.IssueLinkToken(context.Background(), account, core.PrimaryDeviceID)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
}

// --- LinkDevice ---

func issueToken(t *testing.T, f *fixture, account *core.Account) string {
	t.Helper()

	encoded, err := f.service.IssueLinkToken(context.Background(), account, core.PrimaryDeviceID)
	require.NoError(t, err)

	return encoded
}

func TestLinkDeviceEndToEnd(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{DeleteSync: true, VersionedExpirationTimer: true})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	response, err := f.service.LinkDevice(context.Background(), "device-password", makeLinkRequest(encoded))
	require.NoError(t, err)

	assert.Equal(t, account.ACI, response.ACI)
	assert.Equal(t, account.PNI, response.PNI)
	assert.Equal(t, core.PrimaryDeviceID+1, response.DeviceID)

	updated, err := f.accounts.GetByAccountIdentifier(context.Background(), account.ACI)
	require.NoError(t, err)
	require.Len(t, updated.Devices, 2)

	device := updated.GetDevice(response.DeviceID)
	require.NotNil(t, device)
	assert.Equal(t, "new device", device.Name)
	assert.Equal(t, "OWD", device.UserAgent)
	assert.NotEmpty(t, device.AuthCredentialHash)

	assert.Equal(t, []byte{response.DeviceID}, f.events.linked)
}

func TestLinkDeviceTokenIsSingleUse(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))
	require.NoError(t, err)

	_, err = f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestLinkDeviceConcurrentSameTokenAtMostOneCommit(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	const attempts = 16

	var successes atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			if _, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded)); err == nil {
				successes.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	updated, err := f.accounts.GetByAccountIdentifier(context.Background(), account.ACI)
	require.NoError(t, err)
	assert.Len(t, updated.Devices, 2)
}

func TestLinkDeviceGarbageToken(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest("not-a-token"))
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestLinkDeviceExpiredToken(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	f.service.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestLinkDeviceUnknownAccount(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	// Token is valid but its subject no longer resolves
	f.accounts = accounts.NewMemoryAccountStore()
	f.service.accounts = f.accounts

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestLinkDeviceRateLimited(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)
	f.verify.err = &core.RateLimitError{}

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))

	var rateLimited *core.RateLimitError
	assert.ErrorAs(t, err, &rateLimited)
}

func TestLinkDeviceInvalidPreKeySignatures(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)
	f.validator.valid = false

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))

	var unprocessable *core.UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.Equal(t, "invalid prekey signature", unprocessable.Reason)
}

func TestLinkDeviceCeiling(t *testing.T) {
	f := newFixture(t, Config{MaxDeviceOverrides: map[string]int{"+14155550101": 2}})
	account := makeAccount(2, core.DeviceCapabilities{})
	f.accounts.Put(account)

	// Mint directly: IssueLinkToken refuses at the ceiling
	encoded := f.service.codec.Encode(account.ACI, time.Now())

	_, err := f.service.LinkDevice(context.Background(), "pw", makeLinkRequest(encoded))

	var limitErr *core.DeviceLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Current)
	assert.Equal(t, 2, limitErr.Max)
}

func TestLinkDeviceMissingCapabilities(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	request := makeLinkRequest(encoded)
	request.AccountAttributes.Capabilities = nil

	_, err := f.service.LinkDevice(context.Background(), "pw", request)

	var unprocessable *core.UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.Equal(t, "missing device capabilities", unprocessable.Reason)
}

func TestLinkDeviceCapabilityDowngrade(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{DeleteSync: true})
	f.accounts.Put(account)

	encoded := issueToken(t, f, account)

	request := makeLinkRequest(encoded)
	request.AccountAttributes.Capabilities = &core.DeviceCapabilities{DeleteSync: false}

	_, err := f.service.LinkDevice(context.Background(), "pw", request)
	assert.ErrorIs(t, err, core.ErrCapabilityDowngrade)

	// Failed validation must not consume the token
	request.AccountAttributes.Capabilities = &core.DeviceCapabilities{DeleteSync: true}
	_, err = f.service.LinkDevice(context.Background(), "pw", request)
	assert.NoError(t, err)
}

func TestLinkDeviceUserAgentDerivation(t *testing.T) {
	cases := []struct {
		name     string
		apn, gcm string
		want     string
	}{
		{name: "apn token", apn: "apn-token", want: "OWP"},
		{name: "gcm token", gcm: "gcm-token", want: "OWA"},
		{name: "apn wins over gcm", apn: "apn-token", gcm: "gcm-token", want: "OWP"},
		{name: "no push tokens", want: "OWD"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			account := makeAccount(1, core.DeviceCapabilities{})
			f.accounts.Put(account)

			request := makeLinkRequest(issueToken(t, f, account))
			request.ActivationRequest.APNToken = tc.apn
			request.ActivationRequest.GCMToken = tc.gcm

			response, err := f.service.LinkDevice(context.Background(), "pw", request)
			require.NoError(t, err)

			updated, err := f.accounts.GetByAccountIdentifier(context.Background(), account.ACI)
			require.NoError(t, err)
			assert.Equal(t, tc.want, updated.GetDevice(response.DeviceID).UserAgent)
		})
	}
}

// --- RemoveDevice ---

func TestRemoveDeviceAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		caller  byte
		target  byte
		wantErr error
	}{
		{name: "primary removes linked", caller: 1, target: 2, wantErr: nil},
		{name: "linked removes itself", caller: 2, target: 2, wantErr: nil},
		{name: "linked removes other linked", caller: 2, target: 3, wantErr: core.ErrUnauthorized},
		{name: "primary removes itself", caller: 1, target: 1, wantErr: core.ErrForbidden},
		{name: "linked removes primary", caller: 2, target: 1, wantErr: core.ErrUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			account := makeAccount(3, core.DeviceCapabilities{})
			f.accounts.Put(account)

			err := f.service.RemoveDevice(context.Background(), account, tc.caller, tc.target)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)

			updated, err := f.accounts.GetByAccountIdentifier(context.Background(), account.ACI)
			require.NoError(t, err)
			assert.Nil(t, updated.GetDevice(tc.target))
			assert.Equal(t, []byte{tc.target}, f.events.removed)
		})
	}
}

// --- device management facade ---

func TestListDevices(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(2, core.DeviceCapabilities{})

	infos := f.service.ListDevices(account)
	require.Len(t, infos, 2)
	assert.Equal(t, core.PrimaryDeviceID, infos[0].ID)
	assert.Equal(t, core.PrimaryDeviceID+1, infos[1].ID)
}

func TestSetCapabilities(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(2, core.DeviceCapabilities{})
	f.accounts.Put(account)

	capabilities := core.DeviceCapabilities{Storage: true, DeleteSync: true}
	require.NoError(t, f.service.SetCapabilities(context.Background(), account, 2, capabilities))

	updated, err := f.accounts.GetByAccountIdentifier(context.Background(), account.ACI)
	require.NoError(t, err)
	assert.Equal(t, capabilities, updated.GetDevice(2).Capabilities)
}

func TestSetPublicKey(t *testing.T) {
	f := newFixture(t, Config{})
	account := makeAccount(1, core.DeviceCapabilities{})
	f.accounts.Put(account)

	require.NoError(t, f.service.SetPublicKey(context.Background(), account, core.PrimaryDeviceID, []byte("public-key")))
	assert.Equal(t, []byte("public-key"), f.publicKeys.GetPublicKey(account.ACI, core.PrimaryDeviceID))

	err := f.service.SetPublicKey(context.Background(), account, core.PrimaryDeviceID, nil)
	var unprocessable *core.UnprocessableError
	assert.ErrorAs(t, err, &unprocessable)
}
