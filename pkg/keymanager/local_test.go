package keymanager

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *LocalKeyManager {
	t.Helper()
	seed := bytes.Repeat([]byte{0x07}, 32)
	km, err := NewLocalKeyManager(seed, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return km
}

func TestDeriveKeypairDeterministicPerIndex(t *testing.T) {
	km := newTestManager(t)

	pub0a, err := km.DeriveKeypair(0)
	require.NoError(t, err)
	pub0b, err := km.DeriveKeypair(0)
	require.NoError(t, err)
	require.True(t, pub0a.IsEqual(pub0b))

	pub1, err := km.DeriveKeypair(1)
	require.NoError(t, err)
	require.False(t, pub0a.IsEqual(pub1))
}

func TestSignSchnorrVerifies(t *testing.T) {
	km := newTestManager(t)
	pub, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x11}, 32))

	sig, err := km.SignSchnorr(hash, pub)
	require.NoError(t, err)
	require.True(t, sig.Verify(hash[:], pub))
}

func TestSignUnknownPubkeyFails(t *testing.T) {
	km := newTestManager(t)

	priv2, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var hash [32]byte
	_, err = km.SignSchnorr(hash, priv2.PubKey())
	require.Error(t, err)
}

func TestSignSchnorrWithTapTweakChangesKey(t *testing.T) {
	km := newTestManager(t)
	pub, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x22}, 32))
	merkleRoot := bytes.Repeat([]byte{0x33}, 32)

	sig, tweakedKey, err := km.SignSchnorrWithTapTweak(hash, pub, merkleRoot)
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.False(t, tweakedKey.IsEqual(pub))
}

func TestSignSchnorrWithTapTweakNilRootDiffersFromExplicitRoot(t *testing.T) {
	km := newTestManager(t)
	pub, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x44}, 32))

	_, bip86Key, err := km.SignSchnorrWithTapTweak(hash, pub, nil)
	require.NoError(t, err)

	_, zeroRootKey, err := km.SignSchnorrWithTapTweak(hash, pub, make([]byte, 32))
	require.NoError(t, err)

	require.False(t, bip86Key.IsEqual(zeroRootKey),
		"an absent merkle root must tweak differently than a present all-zero one")
}

func TestWinternitzSignAndChainMatchesPublicKey(t *testing.T) {
	km := newTestManager(t)

	msg := []byte("protocol graph engine")
	pub, err := km.DeriveWinternitz(len(msg), WinternitzBase16, 5)
	require.NoError(t, err)

	sig, err := km.SignWinternitz(5, pub, msg)
	require.NoError(t, err)
	require.Len(t, sig.Digits, pub.TotalDigits())
	require.Len(t, sig.Preimages, pub.TotalDigits())

	for i, digit := range sig.Digits {
		chained := hashChain(sig.Preimages[i], pub.Base()-1-int(digit))
		require.Equal(t, pub.Hashes[i], chained, "digit %d preimage must chain to the published tip", i)
	}
}

func TestSignWinternitzUnknownIndexFails(t *testing.T) {
	km := newTestManager(t)
	pub, err := km.DeriveWinternitz(4, WinternitzBase16, 5)
	require.NoError(t, err)

	_, err = km.SignWinternitz(6, pub, []byte("msg1"))
	require.Error(t, err)
}

func TestNewMusig2SessionAggregatesParticipants(t *testing.T) {
	km := newTestManager(t)
	myKey, err := km.DeriveKeypair(0)
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	agg, err := km.NewMusig2Session([]*btcec.PublicKey{myKey, other.PubKey()}, myKey)
	require.NoError(t, err)
	require.NotNil(t, agg)
	require.False(t, agg.IsEqual(myKey))
}
