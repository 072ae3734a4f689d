// Package keys persists the encryption key ring and the sensitive fields
// encrypted under it. Key material is stored AES-GCM-encrypted under the
// master key; this package only ever sees ciphertext.
package keys

import (
	"context"
	"time"
)

// Record is one stored key. Material and Nonce are the master-key-encrypted
// form of the raw key bytes.
type Record struct {
	KeyID     string
	Algorithm string
	Material  []byte
	Nonce     []byte
	CreatedAt time.Time
	IsCurrent bool
}

// SecureField is one locally held sensitive value (e.g. a payment provider
// API key), encrypted under a ring key identified by KeyID.
type SecureField struct {
	Name       string
	KeyID      string
	Ciphertext []byte
	Nonce      []byte
	UpdatedAt  time.Time
}

// Repository stores ring keys and secure fields. Keys are never deleted:
// rotation adds a new current key and demotes the old one so archived data
// stays decryptable.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, keyID string) (*Record, error)
	GetCurrent(ctx context.Context) (*Record, error)
	SetCurrent(ctx context.Context, keyID string) error
	List(ctx context.Context) ([]*Record, error)

	UpsertSecureField(ctx context.Context, f *SecureField) error
	GetSecureField(ctx context.Context, name string) (*SecureField, error)
	ListSecureFields(ctx context.Context) ([]*SecureField, error)
	DeleteSecureFields(ctx context.Context) error
}
