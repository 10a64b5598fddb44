package keymanager

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestSessionsRoundIsCachedPerKey(t *testing.T) {
	s := newMusig2Sessions()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	ctx, err := s.context(priv, []*btcec.PublicKey{priv.PubKey(), other.PubKey()})
	require.NoError(t, err)

	var hash [32]byte
	r1, err := s.round("proto-1", "msg-1", ctx, hash, nil)
	require.NoError(t, err)
	r2, err := s.round("proto-1", "msg-1", ctx, hash, nil)
	require.NoError(t, err)
	require.Same(t, r1, r2, "same (protocolID, messageID) must reuse the round")

	r3, err := s.round("proto-1", "msg-2", ctx, hash, nil)
	require.NoError(t, err)
	require.NotSame(t, r1, r3)
}

func TestCombineUnknownSessionFails(t *testing.T) {
	s := newMusig2Sessions()
	_, err := s.combine("nope", "nope", nil)
	require.Error(t, err)

	var unknownErr *UnknownSessionError
	require.ErrorAs(t, err, &unknownErr)
}
