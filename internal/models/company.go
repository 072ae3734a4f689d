package models

import "time"

// CompanyCode binds a set of devices and staff to one owner's sync scope.
// Once published, the owner binding never silently changes; only an
// explicit regenerate replaces it, and that is not retroactive for
// already-synced devices.
type CompanyCode struct {
	Code        string    `json:"code"`
	OwnerPubkey string    `json:"owner_pubkey"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// InviteToken is a single-use, time-boxed credential letting a new device
// assume a pre-created staff identity.
type InviteToken struct {
	TargetUserID string    `json:"target_user_id"`
	Token        string    `json:"token"`
	PayloadLink  string    `json:"payload_link"`
	ExpiresAt    time.Time `json:"expires_at"`
	SingleUse    bool      `json:"single_use"`
}

// CompanySettings is the scalar settings document synchronized across
// devices. Sensitive fields (payment provider keys) are stored encrypted
// locally and only ever leave the device inside a NIP-44 envelope.
type CompanySettings struct {
	Name        string    `json:"name"`
	Currency    string    `json:"currency"`
	Timezone    string    `json:"timezone"`
	TaxRatePct  float64   `json:"tax_rate_pct"`
	ReceiptNote string    `json:"receipt_note"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by"`
}
