// Package nostr implements the subset of the Nostr protocol the sync core
// relies on: signed events, subscription filters, and the client/relay wire
// messages. Relays are untrusted store-and-forward servers; every event is
// signed by its author and addressed by the hash of its serialized form.
package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Tag is a single event tag: a name followed by values.
type Tag []string

// Event is a signed, timestamped unit of relay storage.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical form hashed to produce the event id:
// the JSON array [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() ([]byte, error) {
	arr := []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	return json.Marshal(arr)
}

// ComputeID hashes the serialized event and returns the hex-encoded id.
func (e *Event) ComputeID() (string, error) {
	b, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Sign fills in PubKey, ID and Sig from the given hex-encoded private key.
// CreatedAt, Kind, Tags and Content must be set before calling.
func (e *Event) Sign(privKeyHex string) error {
	skBytes, err := hex.DecodeString(privKeyHex)
	if err != nil || len(skBytes) != 32 {
		return fmt.Errorf("invalid private key: %w", err)
	}
	sk := secp256k1.PrivKeyFromBytes(skBytes)

	e.PubKey = hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey()))

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(sk, idBytes)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that ID matches the serialized event and that Sig is a
// valid signature by PubKey over it.
func (e *Event) Verify() bool {
	id, err := e.ComputeID()
	if err != nil || id != e.ID {
		return false
	}

	pkBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pkBytes) != 32 {
		return false
	}
	pk, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	idBytes, _ := hex.DecodeString(e.ID)
	return sig.Verify(idBytes, pk)
}

// TagValue returns the first value of the first tag with the given name,
// or "" when no such tag exists.
func (e *Event) TagValue(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}
