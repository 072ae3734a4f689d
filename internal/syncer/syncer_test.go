package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/nostr/nip44"
	"github.com/openpos/companysync/internal/relay/relaytest"
	"github.com/openpos/companysync/internal/store"
	"github.com/openpos/companysync/internal/store/metadata"
)

const testCode = "ABCD-1234-EFGH"

var dbSeq atomic.Int64

type device struct {
	orch  Orchestrator
	repos *store.Repositories
	priv  string
	pub   string
}

// newDevice provisions one device: own database, own keypair, bound to
// the shared company code, talking to the shared fake relay.
func newDevice(t *testing.T, pool *relaytest.FakeClient) *device {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), dbSeq.Add(1))
	db, repos, err := store.InitDatabase(ctx, dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	pub, priv, err := nostr.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, repos.Metadata.Set(ctx, metadata.KeyPrivKey, []byte(priv)))

	cc, err := json.Marshal(&models.CompanyCode{Code: testCode, Enabled: true})
	require.NoError(t, err)
	require.NoError(t, repos.Metadata.Set(ctx, metadata.KeyCompanyCode, cc))

	orch := NewOrchestrator(pool, repos.Metadata, repos.Staff, repos.Audit, repos.Seen, logging.Nop{})
	return &device{orch: orch, repos: repos, priv: priv, pub: pub}
}

// remoteEvent builds a signed, company-scope-encrypted event the way
// another device would.
func remoteEvent(t *testing.T, privKeyHex string, domain models.Domain, payload any) *nostr.Event {
	t.Helper()

	plaintext, err := json.Marshal(payload)
	require.NoError(t, err)
	content, err := nip44.Encrypt(string(plaintext), scopeKey(testCode))
	require.NoError(t, err)

	ev := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindAppData,
		Tags: []nostr.Tag{
			{nostr.TagDomain, domainTag(domain)},
			{nostr.TagCompany, testCode},
		},
		Content: content,
	}
	require.NoError(t, ev.Sign(privKeyHex))
	return ev
}

func drainNotifications(o Orchestrator) []Notification {
	var out []Notification
	for {
		select {
		case n := <-o.Events():
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestPublishUpdateEventShape(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)
	ctx := context.Background()

	settings := &models.CompanySettings{Name: "Corner Deli", Currency: "EUR", UpdatedBy: dev.pub}
	id, err := dev.orch.PublishUpdate(ctx, models.DomainSettings, settings)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	published := pool.Published()
	require.Len(t, published, 1)
	ev := published[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, nostr.KindAppData, ev.Kind)
	assert.Equal(t, nostr.DomainSettings, ev.TagValue(nostr.TagDomain))
	assert.Equal(t, testCode, ev.TagValue(nostr.TagCompany))
	assert.True(t, ev.Verify())
	assert.NotContains(t, ev.Content, "Corner Deli", "payload must never travel in the clear")

	plaintext, err := nip44.Decrypt(ev.Content, scopeKey(testCode))
	require.NoError(t, err)
	var got models.CompanySettings
	require.NoError(t, json.Unmarshal([]byte(plaintext), &got))
	assert.Equal(t, "Corner Deli", got.Name)

	st := dev.orch.Status(models.DomainSettings)
	assert.Equal(t, models.SyncSynced, st.State)
	require.NotNil(t, st.LastSyncAt)
}

func TestPublishWithoutDeviceKey(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)
	ctx := context.Background()

	require.NoError(t, dev.repos.Metadata.Delete(ctx, metadata.KeyPrivKey))

	_, err := dev.orch.PublishUpdate(ctx, models.DomainSettings, &models.CompanySettings{})
	assert.ErrorIs(t, err, common.ErrNoKeyFound)
	assert.Equal(t, models.SyncError, dev.orch.Status(models.DomainSettings).State)
}

func TestPublishWithDisabledCode(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)
	ctx := context.Background()

	cc, err := json.Marshal(&models.CompanyCode{Code: testCode, Enabled: false})
	require.NoError(t, err)
	require.NoError(t, dev.repos.Metadata.Set(ctx, metadata.KeyCompanyCode, cc))

	_, err = dev.orch.PublishUpdate(ctx, models.DomainSettings, &models.CompanySettings{})
	assert.Error(t, err)
}

func TestPublishErrorThenRecovery(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)
	ctx := context.Background()

	pool.PublishErr = fmt.Errorf("no relay acked")
	_, err := dev.orch.PublishUpdate(ctx, models.DomainSettings, &models.CompanySettings{})
	require.Error(t, err)
	st := dev.orch.Status(models.DomainSettings)
	assert.Equal(t, models.SyncError, st.State)
	assert.Contains(t, st.LastError, "no relay acked")

	pool.PublishErr = nil
	_, err = dev.orch.PublishUpdate(ctx, models.DomainSettings, &models.CompanySettings{})
	require.NoError(t, err)
	st = dev.orch.Status(models.DomainSettings)
	assert.Equal(t, models.SyncSynced, st.State)
	assert.Empty(t, st.LastError)
}

func TestTwoDeviceConvergence(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	settings := &models.CompanySettings{Name: "Corner Deli", Currency: "EUR", TaxRatePct: 19, UpdatedBy: devA.pub}
	require.NoError(t, devA.orch.UpdateSettings(ctx, settings))

	st, err := devB.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, st.State)

	got, err := devB.orch.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Corner Deli", got.Name)
	assert.Equal(t, 19.0, got.TaxRatePct)
}

func TestOwnEventNotReapplied(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)
	ctx := context.Background()

	entry := &models.AuditLogEntry{ID: "e-1", Action: models.AuditLogin, Timestamp: time.Now().UTC()}
	require.NoError(t, dev.orch.PublishAudit(ctx, entry))

	// the relay echoes our own event back during a full sync
	_, err := dev.orch.SyncDomain(ctx, models.DomainAudit)
	require.NoError(t, err)

	entries, err := dev.repos.Audit.List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "own event was pre-marked seen and must not re-enter the merge path")
}

func TestIdempotentApply(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	entry := &models.AuditLogEntry{ID: "e-1", Action: models.AuditLogin, UserID: "u-1", Timestamp: time.Now().UTC()}
	ev := remoteEvent(t, devA.priv, models.DomainAudit, entry)
	pool.Store(ev)

	_, err := devB.orch.SyncDomain(ctx, models.DomainAudit)
	require.NoError(t, err)
	_, err = devB.orch.SyncDomain(ctx, models.DomainAudit)
	require.NoError(t, err)

	entries, err := devB.repos.Audit.List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "applying the same event twice must be a no-op")
	assert.Equal(t, "e-1", entries[0].ID)
	assert.Equal(t, ev.ID, entries[0].NostrEventID)
}

func TestStaffRevocationIsMonotonic(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour)
	revokedAt := time.Now().UTC().Add(-time.Minute)

	active := &models.StaffIdentity{
		ID: "s-1", Name: "Bob", Role: models.RoleCashier,
		IsActive: true, CreatedAt: created, UpdatedAt: created,
	}
	revoked := &models.StaffIdentity{
		ID: "s-1", Name: "Bob", Role: models.RoleCashier,
		IsActive: false, CreatedAt: created, UpdatedAt: revokedAt, RevokedAt: &revokedAt,
	}

	// the revocation arrives first, the stale pre-revocation state after
	pool.Store(remoteEvent(t, devA.priv, models.DomainStaff, revoked))
	pool.Store(remoteEvent(t, devA.priv, models.DomainStaff, active))

	_, err := devB.orch.SyncDomain(ctx, models.DomainStaff)
	require.NoError(t, err)

	got, err := devB.repos.Staff.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt, "an older active record must never resurrect a revoked identity")
	assert.False(t, got.IsActive)
}

func TestSettingsLastWriteWins(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	older := &models.CompanySettings{Name: "Old Name", UpdatedAt: time.Now().UTC().Add(-time.Hour), UpdatedBy: "a"}
	newer := &models.CompanySettings{Name: "New Name", UpdatedAt: time.Now().UTC(), UpdatedBy: "a"}

	pool.Store(remoteEvent(t, devA.priv, models.DomainSettings, newer))
	pool.Store(remoteEvent(t, devA.priv, models.DomainSettings, older))

	_, err := devB.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err)

	got, err := devB.orch.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
}

func TestSettingsSameSecondConflict(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	mine := &models.CompanySettings{Name: "Mine", UpdatedAt: at, UpdatedBy: "author-a"}
	theirs := &models.CompanySettings{Name: "Theirs", UpdatedAt: at.Add(500 * time.Millisecond), UpdatedBy: "author-b"}

	raw, err := json.Marshal(mine)
	require.NoError(t, err)
	require.NoError(t, devB.repos.Metadata.Set(ctx, metadata.KeySettings, raw))

	ev := remoteEvent(t, devA.priv, models.DomainSettings, theirs)
	pool.Store(ev)

	_, err = devB.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err)

	var conflicts []Notification
	for _, n := range drainNotifications(devB.orch) {
		if n.Type == NotifyConflictDetected {
			conflicts = append(conflicts, n)
		}
	}
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.DomainSettings, conflicts[0].Domain)
	assert.Contains(t, conflicts[0].Detail, "author-a")
	assert.Contains(t, conflicts[0].Detail, "author-b")

	// surfaced, then resolved last-write-wins
	got, err := devB.orch.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Theirs", got.Name)

	entries, err := devB.repos.Audit.List(ctx, models.AuditFilter{Action: models.AuditConflictDetected})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "conflict-"+ev.ID, entries[0].ID)
}

func TestSettingsEqualTimestampTieBreak(t *testing.T) {
	poolX := relaytest.NewFakeClient()
	poolY := relaytest.NewFakeClient()
	devX := newDevice(t, poolX)
	devY := newDevice(t, poolY)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	alpha := &models.CompanySettings{Name: "Alpha", UpdatedAt: at, UpdatedBy: "author-a"}
	beta := &models.CompanySettings{Name: "Beta", UpdatedAt: at, UpdatedBy: "author-b"}

	evAlpha := remoteEvent(t, devX.priv, models.DomainSettings, alpha)
	evBeta := remoteEvent(t, devY.priv, models.DomainSettings, beta)

	// same events, opposite arrival orders
	poolX.Store(evAlpha)
	poolX.Store(evBeta)
	poolY.Store(evBeta)
	poolY.Store(evAlpha)

	_, err := devX.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err)
	_, err = devY.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err)

	want := "Alpha"
	if evBeta.ID > evAlpha.ID {
		want = "Beta"
	}

	gotX, err := devX.orch.Settings(ctx)
	require.NoError(t, err)
	gotY, err := devY.orch.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, gotX.Name)
	assert.Equal(t, want, gotY.Name)
}

func TestSubscribeToUpdates(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	unsubscribe, err := devB.orch.SubscribeToUpdates(ctx, models.DomainStaff)
	require.NoError(t, err)
	defer unsubscribe()

	rec := &models.StaffIdentity{ID: "s-9", Name: "Carol", Role: models.RoleAdmin, IsActive: true, UpdatedAt: time.Now().UTC()}
	pool.Deliver(remoteEvent(t, devA.priv, models.DomainStaff, rec))

	require.Eventually(t, func() bool {
		_, err := devB.repos.Staff.GetByID(ctx, "s-9")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncAll(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)

	statuses, err := dev.orch.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, len(models.Domains()))
	for _, st := range statuses {
		assert.Equal(t, models.SyncSynced, st.State, string(st.Domain))
	}
}

func TestUndecryptableEventSkipped(t *testing.T) {
	pool := relaytest.NewFakeClient()
	devA := newDevice(t, pool)
	devB := newDevice(t, pool)
	ctx := context.Background()

	content, err := nip44.Encrypt(`{"name":"x"}`, scopeKey("WXYZ-9876-WXYZ"))
	require.NoError(t, err)
	ev := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindAppData,
		Tags: []nostr.Tag{
			{nostr.TagDomain, nostr.DomainSettings},
			{nostr.TagCompany, testCode},
		},
		Content: content,
	}
	require.NoError(t, ev.Sign(devA.priv))
	pool.Store(ev)

	st, err := devB.orch.SyncDomain(ctx, models.DomainSettings)
	require.NoError(t, err, "a foreign-scope event is skipped, not fatal")
	assert.Equal(t, models.SyncSynced, st.State)

	_, err = devB.orch.Settings(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPublishRelayList(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)

	relays := []models.RelayConnection{
		{URL: "wss://relay-a.example", Roles: models.RelayRoles{Read: true, Write: true}},
		{URL: "wss://relay-b.example", Roles: models.RelayRoles{Read: true}},
		{URL: "wss://relay-c.example", Roles: models.RelayRoles{Write: true}},
	}
	require.NoError(t, dev.orch.PublishRelayList(context.Background(), relays))

	published := pool.Published()
	require.Len(t, published, 1)
	ev := published[0]
	assert.Equal(t, nostr.KindRelayList, ev.Kind)
	assert.True(t, ev.Verify())
	require.Len(t, ev.Tags, 3)
	assert.Equal(t, nostr.Tag{"r", "wss://relay-a.example"}, ev.Tags[0])
	assert.Equal(t, nostr.Tag{"r", "wss://relay-b.example", "read"}, ev.Tags[1])
	assert.Equal(t, nostr.Tag{"r", "wss://relay-c.example", "write"}, ev.Tags[2])
}

func TestStatuses(t *testing.T) {
	pool := relaytest.NewFakeClient()
	dev := newDevice(t, pool)

	statuses := dev.orch.Statuses()
	require.Len(t, statuses, len(models.Domains()))
	for _, st := range statuses {
		assert.Equal(t, models.SyncNotSynced, st.State, string(st.Domain))
	}
}
