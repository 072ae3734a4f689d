package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/openpos/companysync/internal/common"
)

// Bech32 human-readable prefixes for key encodings.
const (
	PrefixPublicKey  = "npub"
	PrefixPrivateKey = "nsec"
)

// EncodeNpub converts a 32-byte hex public key into its npub form.
func EncodeNpub(pubKeyHex string) (string, error) {
	return encodeBech32(PrefixPublicKey, pubKeyHex)
}

// EncodeNsec converts a 32-byte hex private key into its nsec form.
func EncodeNsec(privKeyHex string) (string, error) {
	return encodeBech32(PrefixPrivateKey, privKeyHex)
}

// DecodeNpub converts an npub back into hex. The prefix and length are
// validated before any bech32 work so malformed input fails fast with
// common.ErrInvalidFormat; a checksum failure yields common.ErrDecodeFailure.
func DecodeNpub(npub string) (string, error) {
	return decodeBech32(PrefixPublicKey, npub)
}

// DecodeNsec converts an nsec back into hex.
func DecodeNsec(nsec string) (string, error) {
	return decodeBech32(PrefixPrivateKey, nsec)
}

func encodeBech32(prefix, keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil || len(raw) != 32 {
		return "", common.ErrInvalidFormat
	}
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return bech32.Encode(prefix, grouped)
}

func decodeBech32(prefix, encoded string) (string, error) {
	// Format checks first: fixed prefix, fixed overall length (32 bytes of
	// payload always encode to 63 characters).
	if !strings.HasPrefix(encoded, prefix+"1") || len(encoded) != len(prefix)+59 {
		return "", common.ErrInvalidFormat
	}

	hrp, grouped, err := bech32.Decode(encoded)
	if err != nil || hrp != prefix {
		return "", common.ErrDecodeFailure
	}
	raw, err := bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil || len(raw) != 32 {
		return "", common.ErrDecodeFailure
	}
	return hex.EncodeToString(raw), nil
}
