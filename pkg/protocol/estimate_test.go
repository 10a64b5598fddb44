package protocol

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestComputeMinimumOutputValuesSetsZeroValuedParentOutput(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("fee-estimate", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	// Value left at zero so the estimator must fill it in.
	outIdx, err := p.AddP2WPKHOutput("a", 0, key)
	require.NoError(t, err)
	inIdx, err := p.AddP2WPKHInput("b", wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddP2WPKHConnection("a_to_b", "a", outIdx, "b", inIdx))
	_, err = p.AddP2WPKHOutput("b", 1000, key)
	require.NoError(t, err)

	require.NoError(t, p.ComputeMinimumOutputValues(2.0, DefaultSafetyMargin))

	node, err := p.Graph.GetTransaction("a")
	require.NoError(t, err)
	require.Greater(t, node.Outputs[0].Value, btcutil.Amount(0))
}

func TestComputeMinimumOutputValuesLeavesExplicitValueUntouched(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("fee-estimate-explicit", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	outIdx, err := p.AddP2WPKHOutput("a", 5000, key)
	require.NoError(t, err)
	inIdx, err := p.AddP2WPKHInput("b", wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddP2WPKHConnection("a_to_b", "a", outIdx, "b", inIdx))

	require.NoError(t, p.ComputeMinimumOutputValues(2.0, DefaultSafetyMargin))

	node, err := p.Graph.GetTransaction("a")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(5000), node.Outputs[0].Value)
}
