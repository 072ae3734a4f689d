package models

import "time"

// RelayStatus is the connection state of a single relay.
type RelayStatus string

const (
	RelayDisconnected RelayStatus = "disconnected"
	RelayConnecting   RelayStatus = "connecting"
	RelayConnected    RelayStatus = "connected"
	RelayError        RelayStatus = "error"
)

// RelayRoles controls which operations a relay participates in.
type RelayRoles struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Outbox bool `json:"outbox"`
}

// RelayConnection is one configured relay endpoint and its health.
// LatencyMs is nil when unknown (never zero, which would read as "fast").
type RelayConnection struct {
	URL        string      `json:"url"`
	Roles      RelayRoles  `json:"roles"`
	IsPrimary  bool        `json:"is_primary"`
	Status     RelayStatus `json:"status"`
	LatencyMs  *int64      `json:"latency_ms,omitempty"`
	LastSyncAt *time.Time  `json:"last_sync_at,omitempty"`
}

// PoolHealth is the aggregate health surface exposed to the UI.
type PoolHealth struct {
	ConnectedCount int `json:"connected_count"`
	Total          int `json:"total"`
}
