// Package keyring is the encryption service: master password lifecycle,
// the local symmetric key ring (AES-256-GCM), Nostr-native payload
// encryption (NIP-44, legacy NIP-04) and remote key backup to relays.
//
// Old keys are never deleted. Rotation adds a new current key and keeps
// every predecessor so data written under them stays decryptable.
package keyring

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/cryptox"
	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/nostr"
	"github.com/openpos/companysync/internal/nostr/nip04"
	"github.com/openpos/companysync/internal/nostr/nip44"
	"github.com/openpos/companysync/internal/relay"
	"github.com/openpos/companysync/internal/store/keys"
	"github.com/openpos/companysync/internal/store/metadata"
)

// Algorithm selects the cipher used by Encrypt/Decrypt.
type Algorithm string

const (
	// AlgorithmLocal encrypts under the current ring key for local
	// persistence.
	AlgorithmLocal Algorithm = "local"
	// AlgorithmNIP44 is the preferred cipher for relay-bound payloads.
	AlgorithmNIP44 Algorithm = "nip44"
	// AlgorithmNIP04 is legacy, kept only to read old data.
	AlgorithmNIP04 Algorithm = "nip04"
)

const (
	saltSize       = 32
	restoreTimeout = 5 * time.Second
)

// test seam
var timeNow = time.Now

// CipherOptions parameterize Encrypt/Decrypt. The key fields are only
// used by the Nostr algorithms.
type CipherOptions struct {
	Algorithm     Algorithm
	PrivKeyHex    string
	PeerPubKeyHex string
}

// KeyProvider hands out the device's Nostr private key for the self-
// addressed backup envelope.
type KeyProvider interface {
	DevicePrivateKey(ctx context.Context) (string, error)
}

// AuditSink records key lifecycle events.
type AuditSink interface {
	Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error)
}

// Service is the encryption surface.
//
// Contract:
//   - SetupMasterPassword / Unlock / Lock manage the locked state; while
//     locked, Decrypt fails with common.ErrLocked, never with the generic
//     common.ErrDecryptionFailed.
//   - RotateKey re-encrypts every secure field under a fresh current key
//     and retains the old key. Only one rotation may be in flight.
//   - ExportKey and DisableEncryption require password re-entry.
//   - BackupKey publishes a NIP-44 self-envelope; RestoreFromBackup reads
//     it back and fails with common.ErrNoBackupFound when none exists.
type Service interface {
	IsSetUp(ctx context.Context) (bool, error)
	SetupMasterPassword(ctx context.Context, password []byte) error
	Unlock(ctx context.Context, password []byte) error
	Lock()
	IsLocked() bool

	RotateKey(ctx context.Context, password []byte) (string, error)
	ExportKey(ctx context.Context, keyID string, password []byte) (string, error)
	ImportKey(ctx context.Context, keyID, materialHex string) error
	ListKeys(ctx context.Context) ([]*models.EncryptionKey, error)
	CurrentKeyID(ctx context.Context) (string, error)

	Encrypt(ctx context.Context, plaintext []byte, opts CipherOptions) (string, error)
	Decrypt(ctx context.Context, blob string, opts CipherOptions) ([]byte, error)
	SetSecureField(ctx context.Context, name string, value []byte) error
	GetSecureField(ctx context.Context, name string) ([]byte, error)

	DisableEncryption(ctx context.Context, password []byte) error
	BackupKey(ctx context.Context, keyID string) (string, error)
	RestoreFromBackup(ctx context.Context) (int, error)
}

type service struct {
	meta  metadata.Repository
	keys  keys.Repository
	pool  relay.Client
	ident KeyProvider
	audit AuditSink
	log   logging.Logger

	mu        sync.Mutex
	masterKey []byte
	rotating  bool
}

// NewService constructs the encryption service in the locked state.
func NewService(meta metadata.Repository, keyRepo keys.Repository, pool relay.Client, ident KeyProvider, audit AuditSink, log logging.Logger) Service {
	return &service{meta: meta, keys: keyRepo, pool: pool, ident: ident, audit: audit, log: log}
}

func (s *service) IsSetUp(ctx context.Context) (bool, error) {
	_, err := s.meta.Get(ctx, metadata.KeyVerifier)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetupMasterPassword derives and verifies the master key material,
// creates the first ring key, and leaves the service unlocked.
func (s *service) SetupMasterPassword(ctx context.Context, password []byte) error {
	if ok, err := s.IsSetUp(ctx); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("master password already configured")
	}

	salt := common.GenerateRandByteArray(saltSize)
	masterKey := cryptox.DeriveMasterKey(password, salt)

	if err := s.meta.Set(ctx, metadata.KeySalt, salt); err != nil {
		return err
	}
	if err := s.meta.Set(ctx, metadata.KeyVerifier, cryptox.MakeVerifier(masterKey)); err != nil {
		return err
	}

	s.mu.Lock()
	s.masterKey = masterKey
	s.mu.Unlock()

	if _, err := s.createKey(ctx, masterKey, true); err != nil {
		return err
	}
	if _, err := s.audit.Log(ctx, models.AuditEncryptionEnabled, "", "", "encryption enabled"); err != nil {
		return err
	}
	return nil
}

// Unlock derives a candidate key from the password and the stored salt
// and admits it only if it matches the stored verifier.
func (s *service) Unlock(ctx context.Context, password []byte) error {
	masterKey, err := s.checkPassword(ctx, password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.masterKey = masterKey
	s.mu.Unlock()
	return nil
}

// Lock wipes the in-memory master key.
func (s *service) Lock() {
	s.mu.Lock()
	common.WipeByteArray(s.masterKey)
	s.masterKey = nil
	s.mu.Unlock()
}

func (s *service) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.masterKey == nil
}

// RotateKey creates a new current key and re-encrypts every secure field
// under it. The old key stays in the ring so archived or in-flight data
// remains decryptable. Concurrent rotations are rejected.
func (s *service) RotateKey(ctx context.Context, password []byte) (string, error) {
	masterKey, err := s.checkPassword(ctx, password)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(masterKey)

	s.mu.Lock()
	if s.rotating {
		s.mu.Unlock()
		return "", common.ErrRotationInFlight
	}
	s.rotating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.rotating = false
		s.mu.Unlock()
	}()

	oldRec, err := s.keys.GetCurrent(ctx)
	if err != nil {
		return "", err
	}

	newKeyID, err := s.createKey(ctx, masterKey, true)
	if err != nil {
		return "", err
	}

	if err := s.reencryptFields(ctx, masterKey, newKeyID); err != nil {
		return "", err
	}

	if _, err := s.audit.Log(ctx, models.AuditKeyRotated, "", "",
		fmt.Sprintf("key rotated from %s to %s", oldRec.KeyID, newKeyID)); err != nil {
		return "", err
	}
	return newKeyID, nil
}

func (s *service) reencryptFields(ctx context.Context, masterKey []byte, newKeyID string) error {
	newRaw, err := s.keyMaterial(ctx, masterKey, newKeyID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newRaw)

	fields, err := s.keys.ListSecureFields(ctx)
	if err != nil {
		return err
	}
	for _, f := range fields {
		oldRaw, err := s.keyMaterial(ctx, masterKey, f.KeyID)
		if err != nil {
			return err
		}
		plaintext, err := cryptox.DecryptBytes(f.Ciphertext, f.Nonce, oldRaw)
		common.WipeByteArray(oldRaw)
		if err != nil {
			return fmt.Errorf("re-encrypt %s: %w", f.Name, common.ErrDecryptionFailed)
		}

		ciphertext, nonce, err := cryptox.EncryptBytes(plaintext, newRaw)
		common.WipeByteArray(plaintext)
		if err != nil {
			return err
		}
		if err := s.keys.UpsertSecureField(ctx, &keys.SecureField{
			Name:       f.Name,
			KeyID:      newKeyID,
			Ciphertext: ciphertext,
			Nonce:      nonce,
			UpdatedAt:  timeNow().UTC(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// ExportKey reveals raw key material as hex. It demands password re-entry
// regardless of the current unlock state.
func (s *service) ExportKey(ctx context.Context, keyID string, password []byte) (string, error) {
	masterKey, err := s.checkPassword(ctx, password)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(masterKey)

	raw, err := s.keyMaterial(ctx, masterKey, keyID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrKeyExportFailed, err)
	}

	if _, err := s.audit.Log(ctx, models.AuditKeyExported, "", "", "key exported: "+keyID); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// ImportKey accepts hex key material exported elsewhere. Format and
// length are validated before anything is persisted.
func (s *service) ImportKey(ctx context.Context, keyID, materialHex string) error {
	if _, _, err := cryptox.ParseKeyID(keyID); err != nil {
		return err
	}
	raw, err := hex.DecodeString(materialHex)
	if err != nil || len(raw) != cryptox.KeySize {
		return common.ErrInvalidFormat
	}
	defer common.WipeByteArray(raw)

	masterKey, err := s.requireUnlocked()
	if err != nil {
		return err
	}

	if _, err := s.keys.GetByID(ctx, keyID); err == nil {
		return nil // already present
	} else if !errors.Is(err, common.ErrNoKeyFound) {
		return err
	}

	return s.storeKey(ctx, masterKey, keyID, raw, false)
}

func (s *service) ListKeys(ctx context.Context) ([]*models.EncryptionKey, error) {
	recs, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.EncryptionKey, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &models.EncryptionKey{
			KeyID:     rec.KeyID,
			Algorithm: rec.Algorithm,
			CreatedAt: rec.CreatedAt,
			IsCurrent: rec.IsCurrent,
		})
	}
	return out, nil
}

func (s *service) CurrentKeyID(ctx context.Context) (string, error) {
	rec, err := s.keys.GetCurrent(ctx)
	if err != nil {
		return "", err
	}
	return rec.KeyID, nil
}

// Encrypt seals plaintext with the selected algorithm. Local blobs are
// self-describing: "<keyId>:<base64 nonce>:<base64 ciphertext>".
func (s *service) Encrypt(ctx context.Context, plaintext []byte, opts CipherOptions) (string, error) {
	switch opts.Algorithm {
	case AlgorithmLocal, "":
		return s.encryptLocal(ctx, plaintext)
	case AlgorithmNIP44:
		ck, err := nip44.ConversationKey(opts.PrivKeyHex, opts.PeerPubKeyHex)
		if err != nil {
			return "", err
		}
		return nip44.Encrypt(string(plaintext), ck)
	case AlgorithmNIP04:
		sk, err := nip04.SharedKey(opts.PrivKeyHex, opts.PeerPubKeyHex)
		if err != nil {
			return "", err
		}
		return nip04.Encrypt(string(plaintext), sk)
	default:
		return "", fmt.Errorf("unknown algorithm %q", opts.Algorithm)
	}
}

// Decrypt opens a blob produced by Encrypt. The locked state is checked
// before anything else so callers can prompt for the password instead of
// treating the data as corrupted.
func (s *service) Decrypt(ctx context.Context, blob string, opts CipherOptions) ([]byte, error) {
	switch opts.Algorithm {
	case AlgorithmLocal, "":
		return s.decryptLocal(ctx, blob)
	case AlgorithmNIP44:
		ck, err := nip44.ConversationKey(opts.PrivKeyHex, opts.PeerPubKeyHex)
		if err != nil {
			return nil, err
		}
		plaintext, err := nip44.Decrypt(blob, ck)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
		}
		return []byte(plaintext), nil
	case AlgorithmNIP04:
		sk, err := nip04.SharedKey(opts.PrivKeyHex, opts.PeerPubKeyHex)
		if err != nil {
			return nil, err
		}
		plaintext, err := nip04.Decrypt(blob, sk)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
		}
		return []byte(plaintext), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", opts.Algorithm)
	}
}

func (s *service) encryptLocal(ctx context.Context, plaintext []byte) (string, error) {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return "", err
	}

	rec, err := s.keys.GetCurrent(ctx)
	if err != nil {
		return "", err
	}
	raw, err := s.keyMaterial(ctx, masterKey, rec.KeyID)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	ciphertext, nonce, err := cryptox.EncryptBytes(plaintext, raw)
	if err != nil {
		return "", err
	}
	return rec.KeyID + ":" +
		base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *service) decryptLocal(ctx context.Context, blob string) ([]byte, error) {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(blob, ":", 3)
	if len(parts) != 3 {
		return nil, common.ErrDecryptionFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}

	raw, err := s.keyMaterial(ctx, masterKey, parts[0])
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(raw)

	plaintext, err := cryptox.DecryptBytes(ciphertext, nonce, raw)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// SetSecureField stores a sensitive value (e.g. a payment provider API
// key) encrypted under the current ring key.
func (s *service) SetSecureField(ctx context.Context, name string, value []byte) error {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return err
	}

	rec, err := s.keys.GetCurrent(ctx)
	if err != nil {
		return err
	}
	raw, err := s.keyMaterial(ctx, masterKey, rec.KeyID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(raw)

	ciphertext, nonce, err := cryptox.EncryptBytes(value, raw)
	if err != nil {
		return err
	}
	return s.keys.UpsertSecureField(ctx, &keys.SecureField{
		Name:       name,
		KeyID:      rec.KeyID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		UpdatedAt:  timeNow().UTC(),
	})
}

func (s *service) GetSecureField(ctx context.Context, name string) ([]byte, error) {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return nil, err
	}

	f, err := s.keys.GetSecureField(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, err := s.keyMaterial(ctx, masterKey, f.KeyID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(raw)

	plaintext, err := cryptox.DecryptBytes(f.Ciphertext, f.Nonce, raw)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// DisableEncryption is destructive: it deletes every secure field and the
// master password material. Callers must have communicated the loss of
// access before invoking it.
func (s *service) DisableEncryption(ctx context.Context, password []byte) error {
	masterKey, err := s.checkPassword(ctx, password)
	if err != nil {
		return err
	}
	common.WipeByteArray(masterKey)

	if err := s.keys.DeleteSecureFields(ctx); err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, metadata.KeySalt); err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, metadata.KeyVerifier); err != nil {
		return err
	}
	s.Lock()

	if _, err := s.audit.Log(ctx, models.AuditEncryptionOff, "", "", "encryption disabled, secure fields destroyed"); err != nil {
		return err
	}
	return nil
}

// BackupKey publishes the key NIP-44-encrypted from the device keypair to
// itself, so only this operator's Nostr key can ever open it. Returns the
// published event id.
func (s *service) BackupKey(ctx context.Context, keyID string) (string, error) {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return "", err
	}

	rec, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return "", err
	}
	raw, err := s.keyMaterial(ctx, masterKey, rec.KeyID)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	priv, err := s.ident.DevicePrivateKey(ctx)
	if err != nil {
		return "", err
	}
	pub, err := nostr.DerivePublicKey(priv)
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(models.KeyBackupEnvelope{
		KeyID:     rec.KeyID,
		KeyHex:    hex.EncodeToString(raw),
		CreatedAt: rec.CreatedAt.Unix(),
	})
	if err != nil {
		return "", err
	}

	ck, err := nip44.ConversationKey(priv, pub)
	if err != nil {
		return "", err
	}
	content, err := nip44.Encrypt(string(envelope), ck)
	if err != nil {
		return "", err
	}

	ev := &nostr.Event{
		CreatedAt: timeNow().Unix(),
		Kind:      nostr.KindKeyBackup,
		Tags:      []nostr.Tag{{nostr.TagDomain, rec.KeyID}},
		Content:   content,
	}
	if err := ev.Sign(priv); err != nil {
		return "", err
	}
	if _, err := s.pool.Publish(ctx, ev); err != nil {
		return "", err
	}

	if _, err := s.audit.Log(ctx, models.AuditKeyBackedUp, "", "", "key backed up to relays: "+rec.KeyID); err != nil {
		return "", err
	}
	return ev.ID, nil
}

// RestoreFromBackup fetches the device's own backup envelopes from the
// read relays and imports any key not already in the ring. Returns the
// number of keys restored; common.ErrNoBackupFound when no envelope was
// retrievable.
func (s *service) RestoreFromBackup(ctx context.Context) (int, error) {
	masterKey, err := s.requireUnlocked()
	if err != nil {
		return 0, err
	}

	priv, err := s.ident.DevicePrivateKey(ctx)
	if err != nil {
		return 0, err
	}
	pub, err := nostr.DerivePublicKey(priv)
	if err != nil {
		return 0, err
	}
	ck, err := nip44.ConversationKey(priv, pub)
	if err != nil {
		return 0, err
	}

	sub, err := s.pool.Subscribe(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindKeyBackup},
		Authors: []string{pub},
	})
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	deadline := time.NewTimer(restoreTimeout)
	defer deadline.Stop()

	restored, found := 0, 0
collect:
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				break collect
			}
			if ev.PubKey != pub || !ev.Verify() {
				continue
			}
			found++
			n, err := s.importEnvelope(ctx, masterKey, ck, ev.Content)
			if err != nil {
				s.log.Warn("skipping unreadable backup envelope", "event", ev.ID, "err", err)
				continue
			}
			restored += n
		case <-sub.EOSE():
			// drain events buffered ahead of the EOSE signal
			for {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						break collect
					}
					if ev.PubKey != pub || !ev.Verify() {
						continue
					}
					found++
					n, err := s.importEnvelope(ctx, masterKey, ck, ev.Content)
					if err != nil {
						s.log.Warn("skipping unreadable backup envelope", "event", ev.ID, "err", err)
						continue
					}
					restored += n
				default:
					break collect
				}
			}
		case <-deadline.C:
			break collect
		case <-ctx.Done():
			return restored, ctx.Err()
		}
	}

	if found == 0 {
		return 0, common.ErrNoBackupFound
	}
	return restored, nil
}

func (s *service) importEnvelope(ctx context.Context, masterKey, ck []byte, content string) (int, error) {
	plaintext, err := nip44.Decrypt(content, ck)
	if err != nil {
		return 0, err
	}
	var env models.KeyBackupEnvelope
	if err := json.Unmarshal([]byte(plaintext), &env); err != nil {
		return 0, err
	}
	raw, err := hex.DecodeString(env.KeyHex)
	if err != nil || len(raw) != cryptox.KeySize {
		return 0, common.ErrInvalidFormat
	}
	defer common.WipeByteArray(raw)

	if _, err := s.keys.GetByID(ctx, env.KeyID); err == nil {
		return 0, nil
	} else if !errors.Is(err, common.ErrNoKeyFound) {
		return 0, err
	}

	if err := s.storeKey(ctx, masterKey, env.KeyID, raw, false); err != nil {
		return 0, err
	}
	return 1, nil
}

// createKey mints a fresh ring key, persists it encrypted under the
// master key, and optionally promotes it to current.
func (s *service) createKey(ctx context.Context, masterKey []byte, current bool) (string, error) {
	raw, err := cryptox.NewDataKey()
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	keyID, err := cryptox.NewKeyID(cryptox.AlgorithmAESGCM, timeNow())
	if err != nil {
		return "", err
	}
	if err := s.storeKey(ctx, masterKey, keyID, raw, current); err != nil {
		return "", err
	}
	return keyID, nil
}

func (s *service) storeKey(ctx context.Context, masterKey []byte, keyID string, raw []byte, current bool) error {
	material, nonce, err := cryptox.EncryptBytes(raw, masterKey)
	if err != nil {
		return err
	}
	algorithm, createdAt, err := cryptox.ParseKeyID(keyID)
	if err != nil {
		return err
	}
	if err := s.keys.Insert(ctx, &keys.Record{
		KeyID:     keyID,
		Algorithm: algorithm,
		Material:  material,
		Nonce:     nonce,
		CreatedAt: createdAt,
		IsCurrent: current,
	}); err != nil {
		return err
	}
	if current {
		return s.keys.SetCurrent(ctx, keyID)
	}
	return nil
}

// keyMaterial decrypts the stored material of keyID under the master key.
func (s *service) keyMaterial(ctx context.Context, masterKey []byte, keyID string) ([]byte, error) {
	rec, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	raw, err := cryptox.DecryptBytes(rec.Material, rec.Nonce, masterKey)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return raw, nil
}

// requireUnlocked returns a copy of the master key or common.ErrLocked.
func (s *service) requireUnlocked() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterKey == nil {
		return nil, common.ErrLocked
	}
	key := make([]byte, len(s.masterKey))
	copy(key, s.masterKey)
	return key, nil
}

// checkPassword re-derives the master key from an entered password and
// verifies it. Wrong passwords are never retried automatically.
func (s *service) checkPassword(ctx context.Context, password []byte) ([]byte, error) {
	salt, err := s.meta.Get(ctx, metadata.KeySalt)
	if err != nil {
		return nil, err
	}
	verifier, err := s.meta.Get(ctx, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}

	candidate := cryptox.DeriveMasterKey(password, salt)
	if !cryptox.VerifyMasterKey(candidate, verifier) {
		common.WipeByteArray(candidate)
		return nil, common.ErrWrongPassword
	}
	return candidate, nil
}
