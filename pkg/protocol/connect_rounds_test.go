package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

func TestConnectRoundsExplodesPingPongIntoTwoNTransactions(t *testing.T) {
	km := newTestKeyManager(t)
	p := NewProtocol("rounds", km)

	key, err := km.DeriveKeypair(0)
	require.NoError(t, err)
	leafBuilder := func(round uint32) ([]graph.Leaf, error) {
		script, err := graph.CheckSignature(key)
		if err != nil {
			return nil, err
		}
		return []graph.Leaf{{Script: script, SignMode: graph.SignSingle}}, nil
	}

	first, last, err := p.ConnectRounds("B", "C", 3, leafBuilder, leafBuilder)
	require.NoError(t, err)
	require.Equal(t, "B_0", first)
	require.Equal(t, "C_2", last)

	require.ElementsMatch(t, []string{"B_0", "B_1", "B_2", "C_0", "C_1", "C_2"}, p.Graph.GetTransactionNames())

	// Direct connections: B_r -> C_r for every round.
	for round := 0; round < 3; round++ {
		node, err := p.Graph.GetTransaction(fmt.Sprintf("B_%d", round))
		require.NoError(t, err)
		require.Len(t, node.Outputs, 1)
	}

	// C_0 is funded by the direct connection from B_0 and funds only the
	// reverse connection into B_1.
	c0, err := p.Graph.GetTransaction("C_0")
	require.NoError(t, err)
	require.Len(t, c0.Outputs, 1)

	b1, err := p.Graph.GetTransaction("B_1")
	require.NoError(t, err)
	require.Len(t, b1.Inputs, 1)

	// The final round's responder has no reverse connection out of it.
	c2, err := p.Graph.GetTransaction("C_2")
	require.NoError(t, err)
	require.Empty(t, c2.Outputs)
}
