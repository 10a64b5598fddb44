package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnspendableKeyDiffersEachCall(t *testing.T) {
	k1, err := UnspendableKey()
	require.NoError(t, err)
	k2, err := UnspendableKey()
	require.NoError(t, err)

	require.NotNil(t, k1)
	require.NotNil(t, k2)
	require.False(t, k1.IsEqual(k2), "unspendable key should use a fresh random scalar each call")
}
