package protocol

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/keymanager"
)

func newTestKeyManager(t *testing.T) *keymanager.LocalKeyManager {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	km, err := keymanager.NewLocalKeyManager(seed, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return km
}

func TestBuildAndSignP2WPKHChain(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("p2wpkh-chain", km)

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

	require.NoError(t, p.BuildAndSign())

	txA, err := p.Wire("a")
	require.NoError(t, err)
	require.Len(t, txA.TxOut, 1)

	txidA, err := p.Txid("a")
	require.NoError(t, err)
	require.NotEmpty(t, txidA)

	tx, err := p.TransactionToSend("b", map[int]InputArgs{0: NewInputArgs()})
	require.NoError(t, err)
	require.Len(t, tx.TxIn[0].Witness, 2)
}

func TestBuildWithoutSignLeavesSignaturesEmpty(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("p2wpkh-hash-only", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	outIdx, err := p.AddP2WPKHOutput("a", 1000, key)
	require.NoError(t, err)
	inIdx, err := p.AddP2WPKHInput("b", wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddP2WPKHConnection("a_to_b", "a", outIdx, "b", inIdx))

	require.NoError(t, p.Build())

	node, err := p.Graph.GetTransaction("b")
	require.NoError(t, err)
	require.NotNil(t, node.Inputs[0].HashedMessages[0])
	require.False(t, node.Inputs[0].Signatures[0].Present)
}

func TestAddTaprootScriptSpendChainAndSend(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("taproot-chain", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	leafKey, err := km.DeriveKeypair(1)
	require.NoError(t, err)
	leaf, err := graph.CheckSignature(leafKey)
	require.NoError(t, err)

	outIdx, err := p.AddTaprootScriptSpendOutput("a", btcutil.Amount(1000),
		[]graph.Leaf{{Script: leaf, SignMode: graph.SignSingle}})
	require.NoError(t, err)

	inIdx, err := p.AddTaprootScriptSpendInput("b", graph.NewSpendScript(0), wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddTaprootScriptSpendConnection("a_to_b", "a", outIdx, "b", inIdx))

	require.NoError(t, p.BuildAndSign())

	tx, err := p.TransactionToSend("b", map[int]InputArgs{0: ForLeaf(0)})
	require.NoError(t, err)
	// control block + script + signature
	require.Len(t, tx.TxIn[0].Witness, 3)
}

func TestAddTaprootKeySpendChainAndSend(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("taproot-key-spend-chain", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	internalKey, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	outIdx, err := p.AddTaprootKeySpendOutput("a", btcutil.Amount(1000), internalKey)
	require.NoError(t, err)

	inIdx, err := p.AddTaprootKeySpendInput("b", graph.SignSingle, wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddTaprootKeySpendConnection("a_to_b", "a", outIdx, "b", inIdx))

	require.NoError(t, p.BuildAndSign())

	tx, err := p.TransactionToSend("b", map[int]InputArgs{0: NewInputArgs()})
	require.NoError(t, err)
	// key-path spend: signature only
	require.Len(t, tx.TxIn[0].Witness, 1)
}
