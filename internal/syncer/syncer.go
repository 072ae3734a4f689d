// Package syncer is the orchestrator that keeps the synchronized domains
// (settings, staff roster, audit log) convergent across devices. Each
// domain runs the state machine not_synced -> syncing -> {synced|error},
// publishes NIP-44-encrypted events to the write relays and applies
// remote events idempotently with per-domain merge rules.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/nostr/nip44"
	"github.com/openpos/companysync/internal/relay"
	auditstore "github.com/openpos/companysync/internal/store/audit"
	"github.com/openpos/companysync/internal/store/metadata"
	"github.com/openpos/companysync/internal/store/seen"
	staffstore "github.com/openpos/companysync/internal/store/staff"
)

const (
	syncTimeout        = 5 * time.Second
	notificationBuffer = 64
)

// scopeKeyLabel salts the company-code-derived conversation key so it can
// never collide with a key derived for another purpose.
const scopeKeyLabel = "companysync-v1"

// test seam
var timeNow = time.Now

// NotificationType classifies state-change notifications.
type NotificationType string

const (
	NotifyStateChanged     NotificationType = "state_changed"
	NotifyDomainUpdated    NotificationType = "domain_updated"
	NotifyConflictDetected NotificationType = "conflict_detected"
)

// Notification is a state-change signal for the presentation layer. The
// core never performs UI side effects; consumers subscribe to this stream.
type Notification struct {
	Type   NotificationType
	Domain models.Domain
	Detail string
}

// Orchestrator is the per-domain sync surface.
//
// Contract:
//   - PublishUpdate: encrypt, sign, fan out; succeeds on >=1 relay ack.
//   - SyncDomain: bounded fetch-and-apply of the stored events.
//   - SubscribeToUpdates: live application; the disposer closes only the
//     logical subscription.
//   - Applying the same event id twice is a no-op.
type Orchestrator interface {
	PublishUpdate(ctx context.Context, domain models.Domain, payload any) (string, error)
	PublishAudit(ctx context.Context, e *models.AuditLogEntry) error
	SyncDomain(ctx context.Context, domain models.Domain) (*models.DomainStatus, error)
	SyncAll(ctx context.Context) ([]*models.DomainStatus, error)
	SubscribeToUpdates(ctx context.Context, domain models.Domain) (func(), error)
	Status(domain models.Domain) models.DomainStatus
	Statuses() []models.DomainStatus
	Events() <-chan Notification

	Settings(ctx context.Context) (*models.CompanySettings, error)
	UpdateSettings(ctx context.Context, settings *models.CompanySettings) error

	PublishRelayList(ctx context.Context, relays []models.RelayConnection) error
}

type orchestrator struct {
	pool  relay.Client
	meta  metadata.Repository
	staff staffstore.Repository
	audit auditstore.Repository
	seen  seen.Repository
	log   logging.Logger

	mu       sync.Mutex
	statuses map[models.Domain]*models.DomainStatus

	notifications chan Notification
}

// NewOrchestrator constructs the sync orchestrator. Every domain starts
// in the not_synced state.
func NewOrchestrator(pool relay.Client, meta metadata.Repository, staffRepo staffstore.Repository, auditRepo auditstore.Repository, seenRepo seen.Repository, log logging.Logger) Orchestrator {
	statuses := make(map[models.Domain]*models.DomainStatus)
	for _, d := range models.Domains() {
		statuses[d] = &models.DomainStatus{Domain: d, State: models.SyncNotSynced}
	}
	return &orchestrator{
		pool:          pool,
		meta:          meta,
		staff:         staffRepo,
		audit:         auditRepo,
		seen:          seenRepo,
		log:           log,
		statuses:      statuses,
		notifications: make(chan Notification, notificationBuffer),
	}
}

// PublishUpdate encrypts the payload for the company scope, signs it with
// the device key and fans it out. The event is pre-marked as seen so the
// device never re-applies its own update when relays echo it back.
func (o *orchestrator) PublishUpdate(ctx context.Context, domain models.Domain, payload any) (string, error) {
	o.setState(domain, models.SyncSyncing, "")

	eventID, err := o.publish(ctx, domain, payload)
	if err != nil {
		o.setState(domain, models.SyncError, err.Error())
		return "", err
	}

	now := timeNow()
	o.setSynced(domain, now)
	o.notify(Notification{Type: NotifyStateChanged, Domain: domain})
	return eventID, nil
}

// PublishAudit replicates one audit entry. It satisfies audit.Publisher.
func (o *orchestrator) PublishAudit(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := o.PublishUpdate(ctx, models.DomainAudit, e)
	return err
}

func (o *orchestrator) publish(ctx context.Context, domain models.Domain, payload any) (string, error) {
	code, err := o.companyCode(ctx)
	if err != nil {
		return "", err
	}
	priv, err := o.devicePrivateKey(ctx)
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	content, err := nip44.Encrypt(string(plaintext), scopeKey(code))
	if err != nil {
		return "", err
	}

	ev := &nostr.Event{
		CreatedAt: timeNow().Unix(),
		Kind:      nostr.KindAppData,
		Tags: []nostr.Tag{
			{nostr.TagDomain, domainTag(domain)},
			{nostr.TagCompany, code},
		},
		Content: content,
	}
	if err := ev.Sign(priv); err != nil {
		return "", err
	}

	if _, err := o.pool.Publish(ctx, ev); err != nil {
		return "", err
	}

	// our own event must not round-trip back into the merge path
	if _, err := o.seen.MarkSeen(ctx, ev.ID, string(domain), timeNow()); err != nil {
		return "", err
	}
	return ev.ID, nil
}

// SyncDomain performs a bounded fetch of the domain's stored events and
// applies them, entering syncing for the duration.
func (o *orchestrator) SyncDomain(ctx context.Context, domain models.Domain) (*models.DomainStatus, error) {
	o.setState(domain, models.SyncSyncing, "")

	code, err := o.companyCode(ctx)
	if err != nil {
		o.setState(domain, models.SyncError, err.Error())
		return nil, err
	}

	sub, err := o.pool.Subscribe(ctx, nostr.Filter{
		Kinds: []int{nostr.KindAppData},
		Tags: map[string][]string{
			nostr.TagDomain:  {domainTag(domain)},
			nostr.TagCompany: {code},
		},
	})
	if err != nil {
		o.setState(domain, models.SyncError, err.Error())
		return nil, err
	}
	defer sub.Unsubscribe()

	deadline := time.NewTimer(syncTimeout)
	defer deadline.Stop()

collect:
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				break collect
			}
			o.apply(ctx, domain, code, ev)
		case <-sub.EOSE():
			// drain events buffered ahead of the EOSE signal
			for {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						break collect
					}
					o.apply(ctx, domain, code, ev)
				default:
					break collect
				}
			}
		case <-deadline.C:
			break collect
		case <-ctx.Done():
			o.setState(domain, models.SyncError, ctx.Err().Error())
			return nil, ctx.Err()
		}
	}

	o.setSynced(domain, timeNow())
	o.notify(Notification{Type: NotifyStateChanged, Domain: domain})
	st := o.Status(domain)
	return &st, nil
}

// SyncAll runs SyncDomain over every domain in order. Per-domain failures
// are collected; the first error is returned after all domains ran.
func (o *orchestrator) SyncAll(ctx context.Context) ([]*models.DomainStatus, error) {
	var firstErr error
	out := make([]*models.DomainStatus, 0, len(models.Domains()))
	for _, d := range models.Domains() {
		st, err := o.SyncDomain(ctx, d)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sync %s: %w", d, err)
			}
			failed := o.Status(d)
			st = &failed
		}
		out = append(out, st)
	}
	return out, firstErr
}

// SubscribeToUpdates opens a live subscription for the domain and applies
// incoming events until the returned disposer is called.
func (o *orchestrator) SubscribeToUpdates(ctx context.Context, domain models.Domain) (func(), error) {
	code, err := o.companyCode(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := o.pool.Subscribe(ctx, nostr.Filter{
		Kinds: []int{nostr.KindAppData},
		Tags: map[string][]string{
			nostr.TagDomain:  {domainTag(domain)},
			nostr.TagCompany: {code},
		},
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for ev := range sub.Events() {
			o.apply(context.WithoutCancel(ctx), domain, code, ev)
		}
	}()
	return sub.Unsubscribe, nil
}

// apply runs one remote event through verification, idempotence and the
// domain merge rules.
func (o *orchestrator) apply(ctx context.Context, domain models.Domain, code string, ev *nostr.Event) {
	if !ev.Verify() || ev.TagValue(nostr.TagCompany) != code {
		return
	}

	isNew, err := o.seen.MarkSeen(ctx, ev.ID, string(domain), timeNow())
	if err != nil {
		o.log.Warn("seen-event bookkeeping failed", "event", ev.ID, "err", err)
		return
	}
	if !isNew {
		return // relay redelivery and multi-relay fan-in are expected
	}

	plaintext, err := nip44.Decrypt(ev.Content, scopeKey(code))
	if err != nil {
		o.log.Warn("undecryptable sync event", "event", ev.ID, "domain", domain, "err", err)
		return
	}

	switch domain {
	case models.DomainSettings:
		err = o.applySettings(ctx, ev, []byte(plaintext))
	case models.DomainStaff:
		err = o.applyStaff(ctx, ev, []byte(plaintext))
	case models.DomainAudit:
		err = o.applyAudit(ctx, ev, []byte(plaintext))
	default:
		err = fmt.Errorf("unknown domain %q", domain)
	}
	if err != nil {
		o.log.Warn("sync event not applied", "event", ev.ID, "domain", domain, "err", err)
		return
	}
	o.notify(Notification{Type: NotifyDomainUpdated, Domain: domain})
}

// applySettings merges the scalar settings document: last write wins by
// UpdatedAt, with the event id as the deterministic tie-break so devices
// fed the same events in different orders converge. Writes from different
// authors within the same second are applied but surfaced as a conflict
// instead of resolved silently.
func (o *orchestrator) applySettings(ctx context.Context, ev *nostr.Event, plaintext []byte) error {
	var incoming models.CompanySettings
	if err := json.Unmarshal(plaintext, &incoming); err != nil {
		return err
	}

	current, err := o.Settings(ctx)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if current != nil {
		sameSecond := incoming.UpdatedAt.Truncate(time.Second).Equal(current.UpdatedAt.Truncate(time.Second))
		if sameSecond && incoming.UpdatedBy != current.UpdatedBy {
			detail := fmt.Sprintf("settings edited concurrently by %s and %s", current.UpdatedBy, incoming.UpdatedBy)
			o.notify(Notification{Type: NotifyConflictDetected, Domain: models.DomainSettings, Detail: detail})
			if _, err := o.audit.Insert(ctx, &models.AuditLogEntry{
				ID:           "conflict-" + ev.ID,
				Action:       models.AuditConflictDetected,
				UserID:       incoming.UpdatedBy,
				Timestamp:    timeNow().UTC(),
				Details:      detail,
				NostrEventID: ev.ID,
			}); err != nil {
				return err
			}
		}

		currentRec := models.SyncRecord{Domain: models.DomainSettings, CreatedAt: current.UpdatedAt}
		if raw, err := o.meta.Get(ctx, metadata.KeySettingsEvent); err == nil {
			currentRec.EventID = string(raw)
		}
		incomingRec := models.SyncRecord{
			Domain:       models.DomainSettings,
			EventID:      ev.ID,
			AuthorPubkey: ev.PubKey,
			CreatedAt:    incoming.UpdatedAt,
		}
		if !currentRec.Before(&incomingRec) {
			return nil
		}
	}

	raw, err := json.Marshal(&incoming)
	if err != nil {
		return err
	}
	if err := o.meta.Set(ctx, metadata.KeySettings, raw); err != nil {
		return err
	}
	return o.meta.Set(ctx, metadata.KeySettingsEvent, []byte(ev.ID))
}

// applyStaff merges one roster record with the monotonic revoke/delete
// rules; everything else is last-write-wins inside StaffIdentity.Merge.
func (o *orchestrator) applyStaff(ctx context.Context, ev *nostr.Event, plaintext []byte) error {
	var incoming models.StaffIdentity
	if err := json.Unmarshal(plaintext, &incoming); err != nil {
		return err
	}
	if incoming.ID == "" {
		return fmt.Errorf("staff record without id")
	}

	existing, err := o.staff.GetByID(ctx, incoming.ID)
	if errors.Is(err, common.ErrNotFound) {
		return o.staff.Upsert(ctx, &incoming)
	}
	if err != nil {
		return err
	}

	sameSecond := incoming.UpdatedAt.Truncate(time.Second).Equal(existing.UpdatedAt.Truncate(time.Second))
	if sameSecond && existing.PubKeyHex != "" && ev.PubKey != existing.PubKeyHex {
		o.notify(Notification{
			Type:   NotifyConflictDetected,
			Domain: models.DomainStaff,
			Detail: fmt.Sprintf("concurrent edits to staff %s", incoming.ID),
		})
	}

	if !existing.Merge(&incoming) {
		return nil
	}
	return o.staff.Upsert(ctx, existing)
}

// applyAudit appends a replicated audit entry; the repository insert is
// idempotent by entry id.
func (o *orchestrator) applyAudit(ctx context.Context, ev *nostr.Event, plaintext []byte) error {
	var incoming models.AuditLogEntry
	if err := json.Unmarshal(plaintext, &incoming); err != nil {
		return err
	}
	if incoming.ID == "" {
		return fmt.Errorf("audit entry without id")
	}
	incoming.NostrEventID = ev.ID
	_, err := o.audit.Insert(ctx, &incoming)
	return err
}

func (o *orchestrator) Status(domain models.Domain) models.DomainStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.statuses[domain]; ok {
		return *st
	}
	return models.DomainStatus{Domain: domain, State: models.SyncNotSynced}
}

func (o *orchestrator) Statuses() []models.DomainStatus {
	out := make([]models.DomainStatus, 0, len(models.Domains()))
	for _, d := range models.Domains() {
		out = append(out, o.Status(d))
	}
	return out
}

// Events is the notification stream consumed by the presentation layer.
func (o *orchestrator) Events() <-chan Notification {
	return o.notifications
}

// Settings returns the local settings document.
func (o *orchestrator) Settings(ctx context.Context) (*models.CompanySettings, error) {
	raw, err := o.meta.Get(ctx, metadata.KeySettings)
	if err != nil {
		return nil, err
	}
	var settings models.CompanySettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("settings record: %w", err)
	}
	return &settings, nil
}

// UpdateSettings persists the document locally and replicates it.
func (o *orchestrator) UpdateSettings(ctx context.Context, settings *models.CompanySettings) error {
	settings.UpdatedAt = timeNow().UTC()

	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := o.meta.Set(ctx, metadata.KeySettings, raw); err != nil {
		return err
	}

	eventID, err := o.PublishUpdate(ctx, models.DomainSettings, settings)
	if err != nil {
		return err
	}
	// the id takes part in tie-breaking against remote writes later
	return o.meta.Set(ctx, metadata.KeySettingsEvent, []byte(eventID))
}

// PublishRelayList advertises the device's own read/write relay set in a
// NIP-65-style replaceable event so other devices can route to it.
func (o *orchestrator) PublishRelayList(ctx context.Context, relays []models.RelayConnection) error {
	priv, err := o.devicePrivateKey(ctx)
	if err != nil {
		return err
	}

	tags := make([]nostr.Tag, 0, len(relays))
	for _, rc := range relays {
		switch {
		case rc.Roles.Read && rc.Roles.Write:
			tags = append(tags, nostr.Tag{"r", rc.URL})
		case rc.Roles.Read:
			tags = append(tags, nostr.Tag{"r", rc.URL, "read"})
		case rc.Roles.Write:
			tags = append(tags, nostr.Tag{"r", rc.URL, "write"})
		}
	}

	ev := &nostr.Event{
		CreatedAt: timeNow().Unix(),
		Kind:      nostr.KindRelayList,
		Tags:      tags,
	}
	if err := ev.Sign(priv); err != nil {
		return err
	}
	_, err = o.pool.Publish(ctx, ev)
	return err
}

func (o *orchestrator) setState(domain models.Domain, state models.SyncState, lastError string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.statuses[domain]
	st.State = state
	st.LastError = lastError
}

func (o *orchestrator) setSynced(domain models.Domain, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.statuses[domain]
	st.State = models.SyncSynced
	st.LastError = ""
	st.LastSyncAt = &at
}

func (o *orchestrator) notify(n Notification) {
	select {
	case o.notifications <- n:
	default:
		o.log.Warn("notification buffer full, dropping", "type", n.Type, "domain", n.Domain)
	}
}

func (o *orchestrator) companyCode(ctx context.Context) (string, error) {
	raw, err := o.meta.Get(ctx, metadata.KeyCompanyCode)
	if err != nil {
		return "", err
	}
	var cc models.CompanyCode
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("company code record: %w", err)
	}
	if !cc.Enabled {
		return "", fmt.Errorf("company code disabled")
	}
	return cc.Code, nil
}

func (o *orchestrator) devicePrivateKey(ctx context.Context) (string, error) {
	priv, err := o.meta.Get(ctx, metadata.KeyPrivKey)
	if errors.Is(err, common.ErrNotFound) {
		return "", common.ErrNoKeyFound
	}
	if err != nil {
		return "", err
	}
	return string(priv), nil
}

// scopeKey derives the company-scope conversation key from the shared
// company code. Every device holding the code derives the same 32 bytes,
// which is exactly the trust boundary the code establishes.
func scopeKey(code string) []byte {
	return hkdf.Extract(sha256.New, []byte(code), []byte(scopeKeyLabel))
}

// domainTag maps a sync domain to its event "d" tag value.
func domainTag(domain models.Domain) string {
	switch domain {
	case models.DomainSettings:
		return nostr.DomainSettings
	case models.DomainStaff:
		return nostr.DomainStaff
	case models.DomainAudit:
		return nostr.DomainAudit
	default:
		return "company:" + string(domain)
	}
}
