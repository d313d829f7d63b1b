package domain

import "time"

// TrustedDevice records a device/browser a user has previously authenticated
// from. DeviceID is immutable once created; IPAddress and LastSeen are
// refreshed on every successful trust check, so IP churn (mobile networks,
// VPNs) never breaks trust - only device-ID possession matters.
type TrustedDevice struct {
	ID          string
	UserID      string
	Name        string
	IPAddress   string
	BrowserInfo string
	LastSeen    time.Time
	CreatedAt   time.Time
}
