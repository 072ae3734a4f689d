// Package cryptox contains the symmetric primitives used for locally
// persisted sensitive data: a memory-hard KDF for the master password,
// AES-256-GCM for field encryption, and a verifier for password checks.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// KeySize is the size in bytes of master and data keys (AES-256).
const KeySize = 32

// DeriveMasterKey stretches an operator password into a 32-byte master key
// using Argon2id. Raw password bytes are never used as key material.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier returns a value safe to persist that lets a later unlock
// check a derived master key without storing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// VerifyMasterKey compares a candidate key against a stored verifier in
// constant time.
func VerifyMasterKey(masterKey, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(masterKey), verifier) == 1
}

// NewDataKey returns a fresh random 32-byte key for AES-256-GCM.
func NewDataKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptBytes encrypts raw bytes with AES-256-GCM. A fresh random
// 12-byte nonce is generated per call and returned alongside the
// ciphertext.
func EncryptBytes(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptBytes reverses EncryptBytes.
func DecryptBytes(ciphertext, nonce, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
