package models

import "time"

// EncryptionKey is one symmetric key in the local key ring. Exactly one
// key is current at a time; rotated-out keys are retained so data written
// under them stays decryptable.
type EncryptionKey struct {
	KeyID     string    `json:"key_id"`
	Algorithm string    `json:"algorithm"`
	Material  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	IsCurrent bool      `json:"is_current"`
}

// KeyBackupEnvelope is the JSON document published to relays when a key is
// backed up. It is always NIP-44 encrypted from the operator's keypair to
// itself before leaving the device.
type KeyBackupEnvelope struct {
	KeyID     string `json:"keyId"`
	KeyHex    string `json:"keyHex"`
	CreatedAt int64  `json:"createdAt"`
}
