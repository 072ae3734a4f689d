// Package nip04 implements the legacy Nostr message encryption:
// AES-256-CBC keyed directly with the ECDH shared x coordinate, payload
// encoded as base64(ciphertext) + "?iv=" + base64(iv).
//
// It is unauthenticated and its key derivation is weaker than NIP-44's;
// it exists only so data written by old devices stays readable. New
// payloads must use nip44.
package nip04

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/openpos/companysync/internal/nostr"
)

var ErrInvalidPayload = errors.New("nip04: invalid payload")

// SharedKey returns the AES key for a conversation between the two keys.
func SharedKey(privKeyHex, pubKeyHex string) ([]byte, error) {
	return nostr.ComputeSharedSecret(privKeyHex, pubKeyHex)
}

// Encrypt seals plaintext under the shared key with a random IV.
func Encrypt(plaintext string, sharedKey []byte) (string, error) {
	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) +
		"?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt opens a payload produced by Encrypt (or by any legacy client).
func Decrypt(payload string, sharedKey []byte) (string, error) {
	parts := strings.Split(payload, "?iv=")
	if len(parts) != 2 {
		return "", ErrInvalidPayload
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidPayload
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidPayload
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidPayload
	}

	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPayload
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPayload
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPayload
		}
	}
	return data[:len(data)-n], nil
}
