// Package company manages the company code: the short human-shareable
// secret that binds a set of devices and staff to one owner's sync scope,
// and the relay-based owner discovery new devices perform with it.
package company

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/relay"
	"github.com/openpos/companysync/internal/store/metadata"
)

// codeAlphabet omits characters easy to misread when transcribed by hand
// (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeGroups    = 3
	codeGroupSize = 4

	discoverTimeout = 5 * time.Second
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// test seam
var timeNow = time.Now

// Registry manages the company code binding.
//
// Contract:
//   - GenerateCompanyCode: fresh code over the unambiguous alphabet.
//   - SetCompanyCode: validate and persist the binding.
//   - DiscoverOwnerByCompanyCode: bounded relay query; returns "" (not an
//     error) when the owner never published, and flips the registry into
//     degraded mode.
//   - Regenerate: new code for new joiners; not retroactive for devices
//     already bound.
type Registry interface {
	GenerateCompanyCode() (string, error)
	IsValidCompanyCode(input string) bool
	SetCompanyCode(ctx context.Context, code, ownerPubkey string) error
	ToggleCompanyCode(ctx context.Context, enabled bool) error
	Current(ctx context.Context) (*models.CompanyCode, error)
	Regenerate(ctx context.Context) (string, error)
	DiscoverOwnerByCompanyCode(ctx context.Context, code string) (string, error)
	AnnounceOwnership(ctx context.Context, privKeyHex string) error
	Degraded() bool
}

type registry struct {
	meta  metadata.Repository
	pool  relay.Client
	audit AuditSink
	log   logging.Logger

	mu       sync.Mutex
	degraded bool
}

// AuditSink records code lifecycle events.
type AuditSink interface {
	Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error)
}

// NewRegistry constructs a company code registry.
func NewRegistry(meta metadata.Repository, pool relay.Client, audit AuditSink, log logging.Logger) Registry {
	return &registry{meta: meta, pool: pool, audit: audit, log: log}
}

// GenerateCompanyCode returns a fresh XXXX-XXXX-XXXX code.
func (r *registry) GenerateCompanyCode() (string, error) {
	groups := make([]string, 0, codeGroups)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeGroups; i++ {
		var sb strings.Builder
		for j := 0; j < codeGroupSize; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}
	return strings.Join(groups, "-"), nil
}

func (r *registry) IsValidCompanyCode(input string) bool {
	return codePattern.MatchString(input)
}

// SetCompanyCode validates and persists the binding. ownerPubkey may be
// empty when the owner could not be discovered; the device then operates
// in degraded, local-only mode until a later discovery succeeds.
func (r *registry) SetCompanyCode(ctx context.Context, code, ownerPubkey string) error {
	if !r.IsValidCompanyCode(code) {
		return common.ErrInvalidFormat
	}

	cc := &models.CompanyCode{
		Code:        code,
		OwnerPubkey: ownerPubkey,
		Enabled:     true,
		CreatedAt:   timeNow().UTC(),
	}
	return r.save(ctx, cc)
}

func (r *registry) ToggleCompanyCode(ctx context.Context, enabled bool) error {
	cc, err := r.Current(ctx)
	if err != nil {
		return err
	}
	cc.Enabled = enabled
	return r.save(ctx, cc)
}

func (r *registry) Current(ctx context.Context) (*models.CompanyCode, error) {
	raw, err := r.meta.Get(ctx, metadata.KeyCompanyCode)
	if err != nil {
		return nil, err
	}
	var cc models.CompanyCode
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("company code record: %w", err)
	}
	return &cc, nil
}

// Regenerate replaces the code while keeping the owner binding. The old
// code stops working for new joiners only; already-bound devices keep
// functioning until they explicitly re-bind.
func (r *registry) Regenerate(ctx context.Context) (string, error) {
	cc, err := r.Current(ctx)
	if err != nil {
		return "", err
	}

	code, err := r.GenerateCompanyCode()
	if err != nil {
		return "", err
	}
	old := cc.Code
	cc.Code = code
	cc.CreatedAt = timeNow().UTC()
	if err := r.save(ctx, cc); err != nil {
		return "", err
	}

	if _, err := r.audit.Log(ctx, models.AuditCodeRegenerated, "", "", "company code regenerated, old code "+old+" closed for new joins"); err != nil {
		return "", err
	}
	return code, nil
}

// DiscoverOwnerByCompanyCode queries the read relays for the owner's
// announce event. An owner that never published is not an error: the
// method returns "" and the registry reports degraded mode so callers can
// proceed local-only instead of blocking onboarding.
func (r *registry) DiscoverOwnerByCompanyCode(ctx context.Context, code string) (string, error) {
	if !r.IsValidCompanyCode(code) {
		return "", common.ErrInvalidFormat
	}

	sub, err := r.pool.Subscribe(ctx, nostr.Filter{
		Kinds: []int{nostr.KindCompanyAnnounce},
		Tags:  map[string][]string{nostr.TagCompany: {code}},
		Limit: 1,
	})
	if err != nil {
		return "", err
	}
	defer sub.Unsubscribe()

	deadline := time.NewTimer(discoverTimeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return r.discoveryFailed(code), nil
			}
			if !ev.Verify() || ev.TagValue(nostr.TagCompany) != code {
				continue
			}
			r.mu.Lock()
			r.degraded = false
			r.mu.Unlock()
			return ev.PubKey, nil
		case <-sub.EOSE():
			// events buffered ahead of the EOSE signal still count
			for {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						return r.discoveryFailed(code), nil
					}
					if !ev.Verify() || ev.TagValue(nostr.TagCompany) != code {
						continue
					}
					r.mu.Lock()
					r.degraded = false
					r.mu.Unlock()
					return ev.PubKey, nil
				default:
					return r.discoveryFailed(code), nil
				}
			}
		case <-deadline.C:
			return r.discoveryFailed(code), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *registry) discoveryFailed(code string) string {
	r.mu.Lock()
	r.degraded = true
	r.mu.Unlock()
	r.log.Warn("owner not discoverable, proceeding in degraded mode", "code", code)
	return ""
}

// AnnounceOwnership publishes the owner's company announce event so that
// joining devices can discover the owner pubkey from the code.
func (r *registry) AnnounceOwnership(ctx context.Context, privKeyHex string) error {
	cc, err := r.Current(ctx)
	if err != nil {
		return err
	}

	content, err := json.Marshal(map[string]any{"enabled": cc.Enabled})
	if err != nil {
		return err
	}
	ev := &nostr.Event{
		CreatedAt: timeNow().Unix(),
		Kind:      nostr.KindCompanyAnnounce,
		Tags: []nostr.Tag{
			{nostr.TagDomain, cc.Code},
			{nostr.TagCompany, cc.Code},
		},
		Content: string(content),
	}
	if err := ev.Sign(privKeyHex); err != nil {
		return err
	}
	if _, err := r.pool.Publish(ctx, ev); err != nil {
		return fmt.Errorf("announce company: %w", err)
	}
	return nil
}

func (r *registry) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func (r *registry) save(ctx context.Context, cc *models.CompanyCode) error {
	raw, err := json.Marshal(cc)
	if err != nil {
		return err
	}
	return r.meta.Set(ctx, metadata.KeyCompanyCode, raw)
}
