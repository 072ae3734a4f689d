// Package nip44 implements version 2 of the Nostr message-encryption
// scheme: an ECDH-derived conversation key, per-message keys expanded from
// a random nonce, ChaCha20 for confidentiality and HMAC-SHA256 over
// nonce||ciphertext for authenticity. Plaintexts are padded so payload
// sizes leak only a coarse length bucket.
//
// This is the preferred cipher for anything exchanged over relays; NIP-04
// support is retained only to read old data.
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/openpos/companysync/internal/nostr"
)

const (
	version byte = 2

	nonceSize = 32
	macSize   = 32

	minPlaintextSize = 1
	maxPlaintextSize = 65535
)

var (
	ErrUnsupportedVersion = errors.New("nip44: unsupported payload version")
	ErrInvalidPayload     = errors.New("nip44: invalid payload")
	ErrInvalidMAC         = errors.New("nip44: invalid mac")
	ErrPlaintextSize      = errors.New("nip44: plaintext length out of range")
)

// ConversationKey derives the long-lived symmetric key shared between two
// keypairs. It is symmetric: A's private with B's public yields the same
// key as B's private with A's public.
func ConversationKey(privKeyHex, pubKeyHex string) ([]byte, error) {
	shared, err := nostr.ComputeSharedSecret(privKeyHex, pubKeyHex)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(sha256.New, shared, []byte("nip44-v2")), nil
}

// Encrypt seals plaintext under the conversation key and returns the
// base64 payload carrying version, nonce, ciphertext and mac.
func Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return encryptWithNonce(plaintext, conversationKey, nonce)
}

func encryptWithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	if len(plaintext) < minPlaintextSize || len(plaintext) > maxPlaintextSize {
		return "", ErrPlaintextSize
	}

	encKey, cipherNonce, authKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	stream, err := chacha20.NewUnauthenticatedCipher(encKey, cipherNonce)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	stream.XORKeyStream(ciphertext, padded)

	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	mac.Write(ciphertext)

	payload := make([]byte, 0, 1+nonceSize+len(ciphertext)+macSize)
	payload = append(payload, version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac.Sum(nil)...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a payload produced by Encrypt. It distinguishes an
// unsupported version from an authentication failure so callers can tell
// legacy data apart from corruption.
func Decrypt(payload string, conversationKey []byte) (string, error) {
	if len(payload) > 0 && payload[0] == '#' {
		return "", ErrUnsupportedVersion
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// version + nonce + at least one padded block frame + mac
	if len(data) < 1+nonceSize+34+macSize {
		return "", ErrInvalidPayload
	}
	if data[0] != version {
		return "", ErrUnsupportedVersion
	}

	nonce := data[1 : 1+nonceSize]
	ciphertext := data[1+nonceSize : len(data)-macSize]
	gotMAC := data[len(data)-macSize:]

	encKey, cipherNonce, authKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), gotMAC) {
		return "", ErrInvalidMAC
	}

	stream, err := chacha20.NewUnauthenticatedCipher(encKey, cipherNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	stream.XORKeyStream(padded, ciphertext)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// messageKeys expands the conversation key and per-message nonce into the
// ChaCha20 key and nonce plus the HMAC key.
func messageKeys(conversationKey, nonce []byte) (encKey, cipherNonce, authKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, errors.New("nip44: conversation key must be 32 bytes")
	}
	if len(nonce) != nonceSize {
		return nil, nil, nil, errors.New("nip44: nonce must be 32 bytes")
	}

	r := hkdf.Expand(sha256.New, conversationKey, nonce)
	buf := make([]byte, 76)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, nil, err
	}
	return buf[0:32], buf[32:44], buf[44:76], nil
}

// calcPaddedLen buckets a plaintext length: 32 bytes minimum, then chunks
// that grow with the next power of two, per the published scheme.
func calcPaddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpaddedLen-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpaddedLen-1)/chunk + 1)
}

// pad frames the plaintext as [len u16 BE][plaintext][zeros].
func pad(plaintext []byte) []byte {
	padded := make([]byte, 2+calcPaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded, uint16(len(plaintext)))
	copy(padded[2:], plaintext)
	return padded
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPayload
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < minPlaintextSize || 2+n > len(padded) || len(padded) != 2+calcPaddedLen(n) {
		return nil, ErrInvalidPayload
	}
	return padded[2 : 2+n], nil
}
