// Package common defines shared constants and sentinel errors used across
// the sync core and the admin CLI. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Relay-level errors. Non-fatal to the pool: they degrade redundancy,
	// not correctness, while at least one write and one read relay remain.
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionRefused = errors.New("connection refused")
	ErrRelayNotFound     = errors.New("relay not found")
	ErrNoWriteRelays     = errors.New("no write relays configured")
	ErrNoReadRelays      = errors.New("no read relays configured")

	// Encryption-level errors. Never retried automatically; surfaced as
	// user-actionable messages.
	ErrLocked           = errors.New("encryption locked")
	ErrWrongPassword    = errors.New("wrong password")
	ErrKeyExportFailed  = errors.New("key export failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrNoKeyFound       = errors.New("no key found")
	ErrRotationInFlight = errors.New("key rotation already in progress")

	// Identity / company-code validation errors, rejected synchronously
	// at the boundary before any network use.
	ErrInvalidFormat = errors.New("invalid format")
	ErrDecodeFailure = errors.New("decode failure")

	// Invite lifecycle errors.
	ErrTokenUsed    = errors.New("token already used")
	ErrTokenExpired = errors.New("token expired")

	// Degraded-mode conditions, not hard failures.
	ErrNoBackupFound        = errors.New("no backup found")
	ErrOwnerNotDiscoverable = errors.New("owner not discoverable")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)
