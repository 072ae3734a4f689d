package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/store/invites"
	"github.com/openpos/companysync/internal/store/keys"
)

func setupStore(t *testing.T) (*sql.DB, *Repositories) {
	t.Helper()
	ctx := context.Background()

	db, repos, err := InitDatabase(ctx, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, repos
}

func TestMetadata_GetSetDelete(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	_, err := repos.Metadata.Get(ctx, "salt")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, repos.Metadata.Set(ctx, "salt", []byte{1, 2, 3}))
	v, err := repos.Metadata.Get(ctx, "salt")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	require.NoError(t, repos.Metadata.Delete(ctx, "salt"))
	_, err = repos.Metadata.Get(ctx, "salt")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestKeys_CurrentAndRetention(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	_, err := repos.Keys.GetCurrent(ctx)
	assert.ErrorIs(t, err, common.ErrNoKeyFound)

	k1 := &keys.Record{KeyID: "aes256gcm-1000-aaaa", Algorithm: "aes256gcm",
		Material: []byte("ct1"), Nonce: []byte("n1"), CreatedAt: time.Unix(1000, 0), IsCurrent: true}
	require.NoError(t, repos.Keys.Insert(ctx, k1))

	k2 := &keys.Record{KeyID: "aes256gcm-2000-bbbb", Algorithm: "aes256gcm",
		Material: []byte("ct2"), Nonce: []byte("n2"), CreatedAt: time.Unix(2000, 0)}
	require.NoError(t, repos.Keys.Insert(ctx, k2))
	require.NoError(t, repos.Keys.SetCurrent(ctx, k2.KeyID))

	cur, err := repos.Keys.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, k2.KeyID, cur.KeyID)

	// the rotated-out key is retained
	old, err := repos.Keys.GetByID(ctx, k1.KeyID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrent)

	all, err := repos.Keys.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, repos.Keys.SetCurrent(ctx, "missing"), common.ErrNoKeyFound)
}

func TestStaff_UpsertAndList(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	s := &models.StaffIdentity{
		ID: "u1", Name: "Ada", Role: models.RoleOwner,
		Permissions: models.DefaultPermissions(models.RoleOwner),
		IsActive:    true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repos.Staff.Upsert(ctx, s))

	got, err := repos.Staff.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, models.RoleOwner, got.Role)

	owner, err := repos.Staff.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner.ID)

	deleted := time.Unix(2000, 0)
	s.DeletedAt = &deleted
	s.IsActive = false
	require.NoError(t, repos.Staff.Upsert(ctx, s))

	visible, err := repos.Staff.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := repos.Staff.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)
}

func TestStaff_TimestampPrecision(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	created := time.Unix(1000, 250_000_000)
	updated := created.Add(300 * time.Millisecond)
	revoked := updated.Add(100 * time.Millisecond)
	s := &models.StaffIdentity{
		ID: "u1", Name: "Ada", Role: models.RoleCashier,
		Permissions: models.DefaultPermissions(models.RoleCashier),
		CreatedAt:   created, UpdatedAt: updated, RevokedAt: &revoked,
	}
	require.NoError(t, repos.Staff.Upsert(ctx, s))

	got, err := repos.Staff.GetByID(ctx, "u1")
	require.NoError(t, err)

	// sub-second ordering decides merges; the round-trip must be lossless
	assert.Equal(t, created.UnixNano(), got.CreatedAt.UnixNano())
	assert.Equal(t, updated.UnixNano(), got.UpdatedAt.UnixNano())
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, revoked.UnixNano(), got.RevokedAt.UnixNano())
	assert.True(t, got.RevokedAt.After(got.UpdatedAt))
}

func TestAudit_InsertIdempotentAndFilter(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	e := &models.AuditLogEntry{
		ID: "e1", Action: models.AuditLogin, UserID: "u1", UserName: "Ada",
		Timestamp: time.Unix(1000, 0), Details: "logged in from register 2",
	}
	inserted, err := repos.Audit.Insert(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repos.Audit.Insert(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted, "same id twice must be a no-op")

	e2 := &models.AuditLogEntry{
		ID: "e2", Action: models.AuditKeyRotated, UserID: "u2", UserName: "Bob",
		Timestamp: time.Unix(2000, 0), Details: "rotated encryption key",
	}
	_, err = repos.Audit.Insert(ctx, e2)
	require.NoError(t, err)

	byAction, err := repos.Audit.List(ctx, models.AuditFilter{Action: models.AuditLogin})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "e1", byAction[0].ID)

	bySearch, err := repos.Audit.List(ctx, models.AuditFilter{Search: "register"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)

	byRange, err := repos.Audit.List(ctx, models.AuditFilter{From: time.Unix(1500, 0)})
	require.NoError(t, err)
	require.Len(t, byRange, 1)
	assert.Equal(t, "e2", byRange[0].ID)

	stats, err := repos.Audit.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.ByAction[models.AuditKeyRotated])
	assert.EqualValues(t, 1, stats.ByUser["u1"])
	require.NotNil(t, stats.Earliest)
	assert.Equal(t, int64(1000), stats.Earliest.Unix())
}

func TestInvites_SingleUse(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	rec := &invites.Record{JTI: "jti-1", TargetUserID: "u9", ExpiresAt: now.Add(7 * 24 * time.Hour)}
	require.NoError(t, repos.Invites.Insert(ctx, rec))

	got, err := repos.Invites.Consume(ctx, "jti-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u9", got.TargetUserID)

	_, err = repos.Invites.Consume(ctx, "jti-1", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, common.ErrTokenUsed)

	_, err = repos.Invites.Consume(ctx, "missing", now)
	assert.ErrorIs(t, err, common.ErrNotFound)

	expired := &invites.Record{JTI: "jti-2", TargetUserID: "u9", ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, repos.Invites.Insert(ctx, expired))
	_, err = repos.Invites.Consume(ctx, "jti-2", now.Add(time.Hour))
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestSeen_MarkOnce(t *testing.T) {
	_, repos := setupStore(t)
	ctx := context.Background()

	first, err := repos.Seen.MarkSeen(ctx, "ev1", "settings", time.Unix(1000, 0))
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repos.Seen.MarkSeen(ctx, "ev1", "settings", time.Unix(2000, 0))
	require.NoError(t, err)
	assert.False(t, again)

	otherDomain, err := repos.Seen.MarkSeen(ctx, "ev1", "staff", time.Unix(1000, 0))
	require.NoError(t, err)
	assert.True(t, otherDomain, "seen set is scoped per domain")

	ok, err := repos.Seen.IsSeen(ctx, "ev1", "settings")
	require.NoError(t, err)
	assert.True(t, ok)
}
