package models

import "time"

// Domain identifies one synchronized data set.
type Domain string

const (
	DomainSettings Domain = "settings"
	DomainStaff    Domain = "staff"
	DomainAudit    Domain = "audit"
)

// Domains lists every synchronized domain in a stable order.
func Domains() []Domain {
	return []Domain{DomainSettings, DomainStaff, DomainAudit}
}

// SyncState is the per-domain state machine position.
type SyncState string

const (
	SyncNotSynced SyncState = "not_synced"
	SyncSyncing   SyncState = "syncing"
	SyncSynced    SyncState = "synced"
	SyncError     SyncState = "error"
)

// DomainStatus is the reported status of one domain.
type DomainStatus struct {
	Domain     Domain     `json:"domain"`
	State      SyncState  `json:"state"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// SyncRecord is the decrypted per-domain envelope extracted from a relay
// event. Ordering is by CreatedAt with EventID as the deterministic
// tie-break.
type SyncRecord struct {
	Domain       Domain    `json:"domain"`
	EventID      string    `json:"event_id"`
	AuthorPubkey string    `json:"author_pubkey"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

// Before reports whether r is ordered before other: older CreatedAt first,
// lower EventID on equal timestamps.
func (r *SyncRecord) Before(other *SyncRecord) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return r.EventID < other.EventID
}
