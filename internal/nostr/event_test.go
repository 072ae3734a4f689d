package nostr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)
	require.Len(t, pub, 64)
	require.Len(t, priv, 64)

	ev := &Event{
		CreatedAt: time.Now().Unix(),
		Kind:      KindAppData,
		Tags:      []Tag{{TagDomain, DomainSettings}, {TagCompany, "ABCD-1234-EFGH"}},
		Content:   "payload",
	}
	require.NoError(t, ev.Sign(priv))

	assert.Equal(t, pub, ev.PubKey)
	assert.Len(t, ev.ID, 64)
	assert.True(t, ev.Verify())
}

func TestVerify_RejectsTamperedContent(t *testing.T) {
	_, priv, err := GenerateKeypair()
	require.NoError(t, err)

	ev := &Event{CreatedAt: 1714000000, Kind: KindAppData, Tags: []Tag{}, Content: "original"}
	require.NoError(t, ev.Sign(priv))

	ev.Content = "tampered"
	assert.False(t, ev.Verify())
}

func TestComputeSharedSecret_Symmetric(t *testing.T) {
	pubA, privA, err := GenerateKeypair()
	require.NoError(t, err)
	pubB, privB, err := GenerateKeypair()
	require.NoError(t, err)

	ab, err := ComputeSharedSecret(privA, pubB)
	require.NoError(t, err)
	ba, err := ComputeSharedSecret(privB, pubA)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 32)
}

func TestDerivePublicKey(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	derived, err := DerivePublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, derived)
}

func TestTagValue(t *testing.T) {
	ev := &Event{Tags: []Tag{{"d", "company:staff"}, {"company", "AAAA-BBBB-CCCC"}}}
	assert.Equal(t, "company:staff", ev.TagValue("d"))
	assert.Equal(t, "AAAA-BBBB-CCCC", ev.TagValue("company"))
	assert.Equal(t, "", ev.TagValue("missing"))
}
