package nostr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpos/companysync/internal/common"
)

func TestNpub_RoundTrip(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	npub, err := EncodeNpub(pub)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"))
	assert.Len(t, npub, 63)

	back, err := DecodeNpub(npub)
	require.NoError(t, err)
	assert.Equal(t, pub, back)
}

func TestNsec_RoundTrip(t *testing.T) {
	_, priv, err := GenerateKeypair()
	require.NoError(t, err)

	nsec, err := EncodeNsec(priv)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"))

	back, err := DecodeNsec(nsec)
	require.NoError(t, err)
	assert.Equal(t, priv, back)
}

func TestDecodeNpub_FormatRejectedBeforeDecode(t *testing.T) {
	cases := []string{
		"",
		"npub1tooshort",
		"nsec1" + strings.Repeat("q", 58), // wrong prefix for npub
		strings.Repeat("q", 63),
	}
	for _, c := range cases {
		_, err := DecodeNpub(c)
		assert.ErrorIs(t, err, common.ErrInvalidFormat, "input %q", c)
	}
}

func TestDecodeNpub_ChecksumFailure(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)
	npub, err := EncodeNpub(pub)
	require.NoError(t, err)

	// corrupt one data character, keeping prefix and length valid
	corrupted := []byte(npub)
	if corrupted[10] == 'q' {
		corrupted[10] = 'p'
	} else {
		corrupted[10] = 'q'
	}

	_, err = DecodeNpub(string(corrupted))
	assert.ErrorIs(t, err, common.ErrDecodeFailure)
}

func TestEncodeNpub_RejectsBadHex(t *testing.T) {
	_, err := EncodeNpub("zzzz")
	assert.ErrorIs(t, err, common.ErrInvalidFormat)
}
