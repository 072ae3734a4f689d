// Package models defines the domain types replicated across devices:
// staff identities, relay configuration, encryption keys, audit entries
// and the per-domain sync envelope.
package models

import "time"

// Role is a staff member's role within the company.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCashier, RoleStaff:
		return true
	}
	return false
}

// Permission is a single capability a staff member may hold.
type Permission string

const (
	PermManageSettings Permission = "manage_settings"
	PermManageStaff    Permission = "manage_staff"
	PermViewAudit      Permission = "view_audit"
	PermManageKeys     Permission = "manage_keys"
	PermOperateSales   Permission = "operate_sales"
	PermIssueRefunds   Permission = "issue_refunds"
)

// DefaultPermissions returns the capability set granted to a role when no
// explicit set was configured.
func DefaultPermissions(r Role) []Permission {
	switch r {
	case RoleOwner:
		return []Permission{PermManageSettings, PermManageStaff, PermViewAudit, PermManageKeys, PermOperateSales, PermIssueRefunds}
	case RoleAdmin:
		return []Permission{PermManageSettings, PermManageStaff, PermViewAudit, PermOperateSales, PermIssueRefunds}
	case RoleCashier:
		return []Permission{PermOperateSales, PermIssueRefunds}
	default:
		return []Permission{PermOperateSales}
	}
}

// StaffIdentity is one staff member's replicated record. Revocation and
// soft deletion are distinct: a revoked account keeps its record but loses
// sync privileges; a deleted account is hidden by default but recoverable.
type StaffIdentity struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PubKeyHex   string       `json:"pubkey_hex"`
	Npub        string       `json:"npub"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	RevokedAt   *time.Time   `json:"revoked_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

// HasPermission reports whether the member currently holds p. Revoked,
// deleted and expired members hold no permissions.
func (s *StaffIdentity) HasPermission(p Permission, now time.Time) bool {
	if !s.IsActive || s.RevokedAt != nil || s.DeletedAt != nil {
		return false
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	for _, have := range s.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Merge applies a remotely received version of the same identity onto s
// and reports whether s changed. Revocation and deletion are monotonic:
// an older "active" event never resurrects a revoked or deleted record.
// For everything else last-write-wins by UpdatedAt applies.
func (s *StaffIdentity) Merge(remote *StaffIdentity) bool {
	if remote.ID != s.ID {
		return false
	}

	changed := false

	// Monotonic states win regardless of timestamps.
	if remote.RevokedAt != nil && s.RevokedAt == nil {
		s.RevokedAt = remote.RevokedAt
		s.IsActive = false
		changed = true
	}
	if remote.DeletedAt != nil && s.DeletedAt == nil {
		s.DeletedAt = remote.DeletedAt
		s.IsActive = false
		changed = true
	}

	if !remote.UpdatedAt.After(s.UpdatedAt) {
		return changed
	}

	// A restore is an explicit newer event that clears the flags; a plain
	// "active" record from before the revocation must not undo it.
	if remote.RevokedAt == nil && s.RevokedAt != nil {
		s.RevokedAt = nil
		changed = true
	}
	if remote.DeletedAt == nil && s.DeletedAt != nil {
		s.DeletedAt = nil
		changed = true
	}

	s.Name = remote.Name
	s.Role = remote.Role
	s.Permissions = remote.Permissions
	s.ExpiresAt = remote.ExpiresAt
	s.IsActive = remote.IsActive && s.RevokedAt == nil && s.DeletedAt == nil
	s.UpdatedAt = remote.UpdatedAt
	return true
}
