package protocol

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestExportPSBTPopulatesWitnessUtxo(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("psbt-export", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	outIdx, err := p.AddP2WPKHOutput("a", 1000, key)
	require.NoError(t, err)
	inIdx, err := p.AddP2WPKHInput("b", wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddP2WPKHConnection("a_to_b", "a", outIdx, "b", inIdx))
	_, err = p.AddP2WPKHOutput("b", 900, key)
	require.NoError(t, err)

	require.NoError(t, p.Build())

	packet, err := p.ExportPSBT("b")
	require.NoError(t, err)
	require.Len(t, packet.Inputs, 1)
	require.Len(t, packet.Outputs, 1)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)
	require.EqualValues(t, 1000, packet.Inputs[0].WitnessUtxo.Value)
}

func TestExportPSBTUnbuiltTransactionFails(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("psbt-export-unbuilt", km)
	require.NoError(t, p.AddTransaction("a"))

	_, err := p.ExportPSBT("a")
	require.Error(t, err)
}
