package graph

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestCheckSignatureScript(t *testing.T) {
	key := randKey(t)
	ps, err := CheckSignature(key)
	require.NoError(t, err)
	require.NotEmpty(t, ps.Script)
	require.Equal(t, key, ps.VerifyingKey)
}

func TestTimelockScript(t *testing.T) {
	key := randKey(t)
	ps, err := Timelock(144, key)
	require.NoError(t, err)
	require.NotEmpty(t, ps.Script)
}

func TestOpReturnScript(t *testing.T) {
	script, err := OpReturn([]byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, script)
}

func TestProtocolScriptAddKey(t *testing.T) {
	key := randKey(t)
	ps := NewProtocolScript([]byte{0x51}, key)

	require.NoError(t, ps.AddKey("alice", 0, KeyTypeXOnly, 0))
	require.Error(t, ps.AddKey("  ", 1, KeyTypeXOnly, 1))

	k, ok := ps.GetKey("alice")
	require.True(t, ok)
	require.Equal(t, uint32(0), k.KeyPosition)

	require.NoError(t, ps.AddKey("bob", 1, KeyTypeECDSA, 1))
	ordered := ps.OrderedKeys()
	require.Len(t, ordered, 2)
	require.Equal(t, "alice", ordered[0].Name)
	require.Equal(t, "bob", ordered[1].Name)
}

func TestBuildTapTreeSingleLeaf(t *testing.T) {
	key := randKey(t)
	leaf, err := CheckSignature(key)
	require.NoError(t, err)

	tree, err := BuildTapTree(key, []*ProtocolScript{leaf})
	require.NoError(t, err)
	require.NotNil(t, tree.OutputKey)
	require.Len(t, tree.Proofs, 1)
	require.Len(t, tree.Proofs[0].Siblings, 1)
}

func TestBuildTapTreeMultipleLeaves(t *testing.T) {
	key := randKey(t)
	var leaves []*ProtocolScript
	for i := 0; i < 3; i++ {
		leaf, err := CheckSignature(randKey(t))
		require.NoError(t, err)
		leaves = append(leaves, leaf)
	}

	tree, err := BuildTapTree(key, leaves)
	require.NoError(t, err)
	require.Len(t, tree.Proofs, 3)
	for _, p := range tree.Proofs {
		require.NotEmpty(t, p.Siblings)
	}
}

func TestBuildTapTreeEmpty(t *testing.T) {
	key := randKey(t)
	_, err := BuildTapTree(key, nil)
	require.Error(t, err)
}
