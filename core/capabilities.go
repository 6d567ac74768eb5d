package core

// DeviceCapabilities is the closed set of per-device capability flags. The account
// supports a capability only when every device on it does.
type DeviceCapabilities struct {
	Storage                  bool `json:"storage"`
	DeleteSync               bool `json:"deleteSync"`
	VersionedExpirationTimer bool `json:"versionedExpirationTimer"`
}

// DeleteSyncSupported reports whether every device on the account supports
// delete-sync.
func (a *Account) DeleteSyncSupported() bool {
	return a.allDevices(func(d *Device) bool { return d.Capabilities.DeleteSync })
}

// VersionedExpirationTimerSupported reports whether every device on the account
// supports versioned expiration timers.
func (a *Account) VersionedExpirationTimerSupported() bool {
	return a.allDevices(func(d *Device) bool { return d.Capabilities.VersionedExpirationTimer })
}

func (a *Account) allDevices(pred func(*Device) bool) bool {
	for i := range a.Devices {
		if !pred(&a.Devices[i]) {
			return false
		}
	}
	return true
}

// IsCapabilityDowngrade reports whether attaching a device with the proposed
// capabilities would drop a capability the account currently supports on every
// device. Pure predicate, no side effects.
func IsCapabilityDowngrade(account *Account, capabilities DeviceCapabilities) bool {
	downgrade := false
	downgrade = downgrade || (account.DeleteSyncSupported() && !capabilities.DeleteSync)
	downgrade = downgrade || (account.VersionedExpirationTimerSupported() && !capabilities.VersionedExpirationTimer)
	return downgrade
}
