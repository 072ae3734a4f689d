package nostr

// Event kinds used by the company sync scope. KindRelayList follows the
// NIP-65 convention; KindAppData is the parameterized application-data
// kind whose "d" tag carries the sync domain.
const (
	KindRelayList       = 10002
	KindAppData         = 30078
	KindCompanyAnnounce = 30079
	KindKeyBackup       = 30080
)

// Tag names carried on company-scoped events.
const (
	TagDomain  = "d"
	TagCompany = "company"
)

// Domain values for the "d" tag, one per synchronized domain.
const (
	DomainSettings = "company:settings"
	DomainStaff    = "company:staff"
	DomainAudit    = "company:audit"
)
