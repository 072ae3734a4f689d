package nip44

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpos/companysync/internal/nostr"
)

func conversationKeyPair(t *testing.T) (abKey, baKey []byte) {
	t.Helper()
	pubA, privA, err := nostr.GenerateKeypair()
	require.NoError(t, err)
	pubB, privB, err := nostr.GenerateKeypair()
	require.NoError(t, err)

	abKey, err = ConversationKey(privA, pubB)
	require.NoError(t, err)
	baKey, err = ConversationKey(privB, pubA)
	require.NoError(t, err)
	return abKey, baKey
}

func TestConversationKey_Symmetric(t *testing.T) {
	ab, ba := conversationKeyPair(t)
	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 32)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	ab, ba := conversationKeyPair(t)

	for _, plaintext := range []string{
		"a",
		"short settings payload",
		strings.Repeat("x", 32),
		strings.Repeat("staff roster entry ", 100),
	} {
		payload, err := Encrypt(plaintext, ab)
		require.NoError(t, err)

		// the peer decrypts with its own derivation of the same key
		got, err := Decrypt(payload, ba)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_SizeLimits(t *testing.T) {
	key := make([]byte, 32)

	_, err := Encrypt("", key)
	assert.ErrorIs(t, err, ErrPlaintextSize)

	_, err = Encrypt(strings.Repeat("x", maxPlaintextSize+1), key)
	assert.ErrorIs(t, err, ErrPlaintextSize)
}

func TestDecrypt_RejectsTampering(t *testing.T) {
	ab, _ := conversationKeyPair(t)

	payload, err := Encrypt("sensitive", ab)
	require.NoError(t, err)

	// flip one character of the base64 body
	tampered := []byte(payload)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	_, err = Decrypt(string(tampered), ab)
	require.Error(t, err)
}

func TestDecrypt_UnsupportedVersion(t *testing.T) {
	key := make([]byte, 32)

	_, err := Decrypt("#legacy-marker", key)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecrypt_WrongKeyFailsMAC(t *testing.T) {
	ab, _ := conversationKeyPair(t)
	other, _ := conversationKeyPair(t)

	payload, err := Encrypt("sensitive", ab)
	require.NoError(t, err)

	_, err = Decrypt(payload, other)
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestCalcPaddedLen(t *testing.T) {
	tests := []struct{ in, want int }{
		{1, 32},
		{32, 32},
		{33, 64},
		{37, 64},
		{45, 64},
		{49, 64},
		{64, 64},
		{65, 96},
		{100, 128},
		{111, 128},
		{200, 224},
		{250, 256},
		{320, 320},
		{383, 384},
		{384, 384},
		{400, 448},
		{500, 512},
		{512, 512},
		{515, 640},
		{700, 768},
		{800, 896},
		{900, 1024},
		{1020, 1024},
		{65536 / 2, 32768},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calcPaddedLen(tt.in), "calcPaddedLen(%d)", tt.in)
	}
}
