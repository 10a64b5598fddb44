package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

func TestPushWinternitzInterleavesPreimageAndDigit(t *testing.T) {
	sig := &graph.WinternitzSignature{
		Digits:    []byte{0, 5, 15},
		Preimages: [][]byte{{0xaa}, {0xbb}, {0xcc}},
	}

	a := NewInputArgs()
	a.PushWinternitz(sig)

	require.Equal(t, [][]byte{
		{0xaa}, {},
		{0xbb}, {5},
		{0xcc}, {15},
	}, a.Extra)
}

func TestPushRawAndRoundAppend(t *testing.T) {
	a := NewInputArgs()
	a.PushRaw([]byte{1, 2, 3})
	require.Equal(t, [][]byte{{1, 2, 3}}, a.Extra)
}
