// Package identity manages the device's Nostr keypair and the invite
// tokens used to onboard new staff devices.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/store/invites"
	"github.com/openpos/companysync/internal/store/metadata"
)

// InviteTTL is how long an invite stays consumable.
const InviteTTL = 7 * 24 * time.Hour

const qrSizePx = 256

// test seam
var timeNow = time.Now

// AuditSink receives the audit entries this service emits (device key
// auto-provisioning, invite issuance).
type AuditSink interface {
	Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error)
}

// Service defines identity operations.
//
// Contract:
//   - HasKey / EnsureDeviceKey: lazily provision the device keypair; the
//     provisioning itself is recorded as an audit event.
//   - ValidateNpub / DecodePrivateKey / DeriveNpub: bech32 key formats,
//     validated before any cryptographic decode.
//   - CreateInvite / ConsumeInvite: single-use, time-boxed staff invites.
type Service interface {
	HasKey(ctx context.Context) (bool, error)
	EnsureDeviceKey(ctx context.Context) (pubKeyHex string, err error)
	DevicePrivateKey(ctx context.Context) (string, error)
	GenerateKeypair() (pubKeyHex, privKeyHex string, err error)

	ValidateNpub(npub string) bool
	DecodePrivateKey(nsec string) (string, error)
	DeriveNpub(pubKeyHex string) (string, error)

	CreateInvite(ctx context.Context, targetUserID string) (*models.InviteToken, error)
	ConsumeInvite(ctx context.Context, token string) (targetUserID string, err error)
	InviteQR(invite *models.InviteToken) ([]byte, error)
}

type service struct {
	meta    metadata.Repository
	invites invites.Repository
	audit   AuditSink
	baseURL string
}

// NewService constructs an identity service. baseURL is the join-link
// prefix rendered into invite links and QR codes.
func NewService(meta metadata.Repository, inv invites.Repository, audit AuditSink, baseURL string) Service {
	return &service{meta: meta, invites: inv, audit: audit, baseURL: baseURL}
}

func (s *service) HasKey(ctx context.Context) (bool, error) {
	_, err := s.meta.Get(ctx, metadata.KeyPrivKey)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureDeviceKey returns the device's public key, generating and
// persisting a keypair first if none exists yet. Auto-provisioning is a
// deliberate usability trade-off and leaves an audit trail.
func (s *service) EnsureDeviceKey(ctx context.Context) (string, error) {
	priv, err := s.meta.Get(ctx, metadata.KeyPrivKey)
	if err == nil {
		return nostr.DerivePublicKey(string(priv))
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", err
	}

	pubHex, privHex, err := nostr.GenerateKeypair()
	if err != nil {
		return "", fmt.Errorf("generate keypair: %w", err)
	}
	if err := s.meta.Set(ctx, metadata.KeyPrivKey, []byte(privHex)); err != nil {
		return "", err
	}

	npub, _ := nostr.EncodeNpub(pubHex)
	if _, err := s.audit.Log(ctx, models.AuditKeyGenerated, "", "", "device keypair auto-provisioned: "+npub); err != nil {
		return "", err
	}
	return pubHex, nil
}

func (s *service) DevicePrivateKey(ctx context.Context) (string, error) {
	priv, err := s.meta.Get(ctx, metadata.KeyPrivKey)
	if errors.Is(err, common.ErrNotFound) {
		return "", common.ErrNoKeyFound
	}
	if err != nil {
		return "", err
	}
	return string(priv), nil
}

func (s *service) GenerateKeypair() (string, string, error) {
	return nostr.GenerateKeypair()
}

func (s *service) ValidateNpub(npub string) bool {
	_, err := nostr.DecodeNpub(npub)
	return err == nil
}

func (s *service) DecodePrivateKey(nsec string) (string, error) {
	return nostr.DecodeNsec(nsec)
}

func (s *service) DeriveNpub(pubKeyHex string) (string, error) {
	return nostr.EncodeNpub(pubKeyHex)
}

// inviteClaims is the JWT claim set carried by an invite token.
type inviteClaims struct {
	jwt.RegisteredClaims
}

// CreateInvite issues a signed, single-use invite for the given pending
// staff identity and records its jti so consumption can be enforced once.
func (s *service) CreateInvite(ctx context.Context, targetUserID string) (*models.InviteToken, error) {
	secret, err := s.inviteSecret(ctx)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	expiresAt := now.Add(InviteTTL)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, inviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   targetUserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("sign invite: %w", err)
	}

	if err := s.invites.Insert(ctx, &invites.Record{
		JTI:          jti,
		TargetUserID: targetUserID,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return nil, err
	}

	if _, err := s.audit.Log(ctx, models.AuditStaffInvited, targetUserID, "", "invite issued"); err != nil {
		return nil, err
	}

	return &models.InviteToken{
		TargetUserID: targetUserID,
		Token:        signed,
		PayloadLink:  s.baseURL + "/join?token=" + url.QueryEscape(signed),
		ExpiresAt:    expiresAt,
		SingleUse:    true,
	}, nil
}

// ConsumeInvite validates the token and marks it used. A second
// consumption of the same token fails with common.ErrTokenUsed.
func (s *service) ConsumeInvite(ctx context.Context, token string) (string, error) {
	secret, err := s.inviteSecret(ctx)
	if err != nil {
		return "", err
	}

	claims := &inviteClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidFormat, err)
	}

	rec, err := s.invites.Consume(ctx, claims.ID, timeNow())
	if err != nil {
		return "", err
	}
	return rec.TargetUserID, nil
}

// InviteQR renders the invite link as a PNG QR code.
func (s *service) InviteQR(invite *models.InviteToken) ([]byte, error) {
	return qrcode.Encode(invite.PayloadLink, qrcode.Medium, qrSizePx)
}

// inviteSecret returns the per-installation HMAC secret, creating it on
// first use.
func (s *service) inviteSecret(ctx context.Context) ([]byte, error) {
	secret, err := s.meta.Get(ctx, metadata.KeyInviteSecret)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	secret = common.GenerateRandByteArray(32)
	if err := s.meta.Set(ctx, metadata.KeyInviteSecret, secret); err != nil {
		return nil, err
	}
	return secret, nil
}
