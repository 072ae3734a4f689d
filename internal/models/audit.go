package models

import "time"

// AuditAction classifies an audit log entry.
type AuditAction string

const (
	AuditLogin             AuditAction = "login"
	AuditLogout            AuditAction = "logout"
	AuditSettingsChanged   AuditAction = "settings_changed"
	AuditStaffInvited      AuditAction = "staff_invited"
	AuditStaffJoined       AuditAction = "staff_joined"
	AuditStaffRevoked      AuditAction = "staff_revoked"
	AuditStaffRestored     AuditAction = "staff_restored"
	AuditStaffDeleted      AuditAction = "staff_deleted"
	AuditKeyGenerated      AuditAction = "key_generated"
	AuditKeyRotated        AuditAction = "key_rotated"
	AuditKeyExported       AuditAction = "key_exported"
	AuditKeyBackedUp       AuditAction = "key_backed_up"
	AuditEncryptionEnabled AuditAction = "encryption_enabled"
	AuditEncryptionOff     AuditAction = "encryption_disabled"
	AuditCodeRegenerated   AuditAction = "company_code_regenerated"
	AuditConflictDetected  AuditAction = "sync_conflict_detected"
)

// AuditLogEntry is append-only: entries are never mutated after creation
// and deletion is not a supported operation.
type AuditLogEntry struct {
	ID           string            `json:"id"`
	Action       AuditAction       `json:"action"`
	UserID       string            `json:"user_id"`
	UserName     string            `json:"user_name"`
	Timestamp    time.Time         `json:"timestamp"`
	Details      string            `json:"details"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	NostrEventID string            `json:"nostr_event_id,omitempty"`
}

// AuditFilter narrows a read of the audit log. Zero-value fields are
// wildcards. Search matches free text over details, user name and action.
type AuditFilter struct {
	Action AuditAction
	UserID string
	From   time.Time
	To     time.Time
	Search string
	Limit  int
	Offset int
}

// AuditStats aggregates the log for the dashboard.
type AuditStats struct {
	Total    int64                 `json:"total"`
	ByAction map[AuditAction]int64 `json:"by_action"`
	ByUser   map[string]int64      `json:"by_user"`
	Earliest *time.Time            `json:"earliest,omitempty"`
	Latest   *time.Time            `json:"latest,omitempty"`
}
