// Package metadata is the local key/value repository for small per-device
// state: salt and verifier for the master password, the company code
// binding, relay configuration and the settings document.
package metadata

import "context"

// Well-known metadata keys.
const (
	KeySalt          = "salt"
	KeyVerifier      = "verifier"
	KeyCompanyCode   = "company_code"
	KeyRelays        = "relays"
	KeySettings      = "settings"
	KeySettingsEvent = "settings_event"
	KeyPrivKey       = "device_privkey"
	KeyStaffID       = "device_staff_id"
	KeyInviteSecret  = "invite_secret"
)

// Repository stores opaque values by key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
