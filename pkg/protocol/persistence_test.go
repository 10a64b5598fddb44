package protocol

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

type memoryBackend struct {
	records map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{records: make(map[string][]byte)}
}

func (m *memoryBackend) Read(key string) ([]byte, bool, error) {
	v, ok := m.records[key]
	return v, ok, nil
}

func (m *memoryBackend) Write(key string, value []byte) error {
	m.records[key] = value
	return nil
}

func buildSamplePSBTProtocol(t *testing.T) *Protocol {
	t.Helper()
	km := newTestKeyManager(t)
	p := NewProtocol("save-load", km)

	require.NoError(t, p.AddTransaction("a"))
	require.NoError(t, p.AddTransaction("b"))

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)

	leafKey, err := km.DeriveKeypair(1)
	require.NoError(t, err)
	leaf, err := graph.CheckSignature(leafKey)
	require.NoError(t, err)
	require.NoError(t, leaf.AddKey("signer", 1, graph.KeyTypeXOnly, 0))

	outIdx, err := p.AddTaprootScriptSpendOutput("a", 1000, []graph.Leaf{{Script: leaf, SignMode: graph.SignSingle}})
	require.NoError(t, err)

	inIdx, err := p.AddTaprootScriptSpendInput("b", graph.NewSpendScript(0), wire.MaxTxInSequenceNum)
	require.NoError(t, err)
	require.NoError(t, p.AddTaprootScriptSpendConnection("a_to_b", "a", outIdx, "b", inIdx))
	_, err = p.AddP2WPKHOutput("b", 900, key)
	require.NoError(t, err)

	require.NoError(t, p.BuildAndSign())
	return p
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := buildSamplePSBTProtocol(t)
	backend := newMemoryBackend()
	require.NoError(t, p.Save(backend))

	loaded, err := Load(p.Name, backend, nil)
	require.NoError(t, err)

	require.Equal(t, p.Name, loaded.Name)
	require.Equal(t, p.Graph.GetTransactionNames(), loaded.Graph.GetTransactionNames())

	origNode, err := p.Graph.GetTransaction("a")
	require.NoError(t, err)
	loadedNode, err := loaded.Graph.GetTransaction("a")
	require.NoError(t, err)

	require.Equal(t, origNode.Txid, loadedNode.Txid)
	require.Equal(t, origNode.Outputs[0].Kind(), loadedNode.Outputs[0].Kind())
	require.NotNil(t, loadedNode.Outputs[0].SpendInfo, "tap-tree spend info must be recomputed on load")
	require.Equal(t, origNode.Outputs[0].SpendInfo.OutputKey.SerializeCompressed(),
		loadedNode.Outputs[0].SpendInfo.OutputKey.SerializeCompressed())

	bNode, err := loaded.Graph.GetTransaction("b")
	require.NoError(t, err)
	require.True(t, bNode.Inputs[0].Signatures[0].Present)
}

func TestVisualizeTextAndDOT(t *testing.T) {
	p := buildSamplePSBTProtocol(t)

	text := p.Visualize(VisualizeOptions{})
	require.Contains(t, text, "save-load")
	require.Contains(t, text, "a (outputs=1")

	debugText := p.Visualize(VisualizeOptions{Debug: true})
	require.Contains(t, debugText, "ScriptPubKey")

	dot := p.Visualize(VisualizeOptions{DOT: true})
	require.Contains(t, dot, "digraph")
	require.Contains(t, dot, "\"a\" -> \"b\"")
}
