package cryptox

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpos/companysync/internal/common"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d-byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveMasterKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestVerifyMasterKey(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))
	verifier := MakeVerifier(key)

	assert.True(t, VerifyMasterKey(key, verifier))
	assert.False(t, VerifyMasterKey(DeriveMasterKey([]byte("other"), []byte("salt")), verifier))
}

func TestEncryptBytes_RoundTrip(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)

	ciphertext, nonce, err := EncryptBytes([]byte("payment-api-key"), key)
	require.NoError(t, err)
	require.Len(t, nonce, 12)

	plain, err := DecryptBytes(ciphertext, nonce, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payment-api-key"), plain)
}

func TestDecryptBytes_WrongKeyFails(t *testing.T) {
	key1, err := NewDataKey()
	require.NoError(t, err)
	key2, err := NewDataKey()
	require.NoError(t, err)

	ciphertext, nonce, err := EncryptBytes([]byte("payment-api-key"), key1)
	require.NoError(t, err)

	_, err = DecryptBytes(ciphertext, nonce, key2)
	require.Error(t, err)
}

func TestKeyID_RoundTrip(t *testing.T) {
	now := time.Unix(1714000000, 0)
	id, err := NewKeyID(AlgorithmAESGCM, now)
	require.NoError(t, err)

	alg, createdAt, err := ParseKeyID(id)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmAESGCM, alg)
	assert.Equal(t, now.Unix(), createdAt.Unix())

	age, err := KeyAge(id, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, age)
}

func TestParseKeyID_Invalid(t *testing.T) {
	cases := []string{"", "aes256gcm", "aes256gcm-abc-dead", "-1714000000-dead", "aes256gcm-1714000000-toolong"}
	for _, c := range cases {
		_, _, err := ParseKeyID(c)
		if !errors.Is(err, common.ErrInvalidFormat) {
			t.Errorf("ParseKeyID(%q): expected ErrInvalidFormat, got %v", c, err)
		}
	}
}
