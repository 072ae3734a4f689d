package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// GenerateKeypair returns a fresh secp256k1 keypair as hex strings.
// The public key is the 32-byte x-only form used throughout the protocol.
func GenerateKeypair() (pubKeyHex, privKeyHex string, err error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())),
		hex.EncodeToString(sk.Serialize()), nil
}

// DerivePublicKey returns the x-only public key for a hex private key.
func DerivePublicKey(privKeyHex string) (string, error) {
	skBytes, err := hex.DecodeString(privKeyHex)
	if err != nil || len(skBytes) != 32 {
		return "", fmt.Errorf("invalid private key")
	}
	sk := secp256k1.PrivKeyFromBytes(skBytes)
	return hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())), nil
}

// ComputeSharedSecret performs an ECDH exchange between our private key and
// a peer's x-only public key and returns the 32-byte x coordinate of the
// shared point. Both NIP-04 and NIP-44 derive their keys from this value.
func ComputeSharedSecret(privKeyHex, pubKeyHex string) ([]byte, error) {
	skBytes, err := hex.DecodeString(privKeyHex)
	if err != nil || len(skBytes) != 32 {
		return nil, fmt.Errorf("invalid private key")
	}
	sk := secp256k1.PrivKeyFromBytes(skBytes)

	pkBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pkBytes) != 32 {
		return nil, fmt.Errorf("invalid public key")
	}
	// x-only keys are interpreted as having an even y coordinate.
	pk, err := secp256k1.ParsePubKey(append([]byte{0x02}, pkBytes...))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	var point, result secp256k1.JacobianPoint
	pk.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&sk.Key, &point, &result)
	result.ToAffine()

	x := result.X.Bytes()
	return x[:], nil
}
