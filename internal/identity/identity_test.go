package identity

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/store"
)

type fakeAudit struct {
	actions []models.AuditAction
}

func (f *fakeAudit) Log(_ context.Context, action models.AuditAction, _, _, _ string) (*models.AuditLogEntry, error) {
	f.actions = append(f.actions, action)
	return &models.AuditLogEntry{Action: action}, nil
}

func setupService(t *testing.T) (Service, *fakeAudit) {
	t.Helper()
	ctx := context.Background()

	db, repos, err := store.InitDatabase(ctx, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	audit := &fakeAudit{}
	return NewService(repos.Metadata, repos.Invites, audit, "https://pos.example"), audit
}

func TestEnsureDeviceKeyProvisionsOnce(t *testing.T) {
	svc, audit := setupService(t)
	ctx := context.Background()

	has, err := svc.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	pub, err := svc.EnsureDeviceKey(ctx)
	require.NoError(t, err)
	assert.Len(t, pub, 64)
	assert.Equal(t, []models.AuditAction{models.AuditKeyGenerated}, audit.actions)

	has, err = svc.HasKey(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	again, err := svc.EnsureDeviceKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pub, again)
	assert.Len(t, audit.actions, 1, "provisioning must be audited exactly once")
}

func TestKeyFormats(t *testing.T) {
	svc, _ := setupService(t)

	pub, priv, err := svc.GenerateKeypair()
	require.NoError(t, err)

	npub, err := svc.DeriveNpub(pub)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"))
	assert.True(t, svc.ValidateNpub(npub))

	assert.False(t, svc.ValidateNpub("npub1tooshort"))
	assert.False(t, svc.ValidateNpub(""))
	assert.False(t, svc.ValidateNpub(strings.Replace(npub, "npub", "nsec", 1)))

	// nsec decode round-trips the private key
	nsec, err := nostr.EncodeNsec(priv)
	require.NoError(t, err)
	decoded, err := svc.DecodePrivateKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, priv, decoded)

	_, err = svc.DecodePrivateKey("nsec1bogus")
	assert.ErrorIs(t, err, common.ErrInvalidFormat)
}

func TestInviteLifecycle(t *testing.T) {
	svc, audit := setupService(t)
	ctx := context.Background()

	invite, err := svc.CreateInvite(ctx, "staff-42")
	require.NoError(t, err)
	assert.Equal(t, "staff-42", invite.TargetUserID)
	assert.True(t, invite.SingleUse)
	assert.Contains(t, invite.PayloadLink, "https://pos.example/join?token=")
	assert.WithinDuration(t, time.Now().Add(InviteTTL), invite.ExpiresAt, time.Minute)
	assert.Contains(t, audit.actions, models.AuditStaffInvited)

	target, err := svc.ConsumeInvite(ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, "staff-42", target)

	_, err = svc.ConsumeInvite(ctx, invite.Token)
	assert.ErrorIs(t, err, common.ErrTokenUsed)
}

func TestInviteTampering(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	invite, err := svc.CreateInvite(ctx, "staff-1")
	require.NoError(t, err)

	_, err = svc.ConsumeInvite(ctx, invite.Token+"x")
	assert.ErrorIs(t, err, common.ErrInvalidFormat)

	_, err = svc.ConsumeInvite(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, common.ErrInvalidFormat)
}

func TestInviteExpiry(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	invite, err := svc.CreateInvite(ctx, "staff-1")
	require.NoError(t, err)

	orig := timeNow
	timeNow = func() time.Time { return orig().Add(InviteTTL + time.Hour) }
	defer func() { timeNow = orig }()

	_, err = svc.ConsumeInvite(ctx, invite.Token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestInviteQR(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	invite, err := svc.CreateInvite(ctx, "staff-1")
	require.NoError(t, err)

	png, err := svc.InviteQR(invite)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
