package graph

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func newOutput(value btcutil.Amount) OutputType {
	return NewExternalUnknownOutput(value, []byte{0x51}, "", 0)
}

func TestGraphConnectAndSort(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("a"))
	require.NoError(t, g.AddTransaction("b"))
	require.NoError(t, g.AddTransaction("c"))

	_, err := g.AddTransactionOutput("a", newOutput(1000))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)
	_, err = g.AddTransactionOutput("b", newOutput(900))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("c", InputType{})
	require.NoError(t, err)

	require.NoError(t, g.Connect("a", 0, "b", 0))
	require.NoError(t, g.Connect("b", 0, "c", 0))

	order, err := g.Sort()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)

	require.Equal(t, []string{"a"}, g.GetDependencies("b"))
	require.Equal(t, []string{"b"}, g.NextTransactions("a"))
}

func TestGraphSortDetectsCycle(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("a"))
	require.NoError(t, g.AddTransaction("b"))

	_, err := g.AddTransactionOutput("a", newOutput(1000))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)
	_, err = g.AddTransactionOutput("b", newOutput(1000))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("a", InputType{})
	require.NoError(t, err)

	require.NoError(t, g.Connect("a", 0, "b", 0))
	require.NoError(t, g.Connect("b", 0, "a", 0))

	_, err = g.Sort()
	require.Error(t, err)
}

func TestGraphConnectMissingOutput(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("a"))
	require.NoError(t, g.AddTransaction("b"))
	_, err := g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)

	err = g.Connect("a", 0, "b", 0)
	require.Error(t, err)
}

func TestResolveInputOutpointExternal(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("b"))
	_, err := g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)

	out := NewExternalUnknownOutput(1000, []byte{0x51}, "deadbeef", 2)
	require.NoError(t, g.ConnectWithExternalTransaction("deadbeef", 2, out, "b", 0))

	txid, vout, err := g.ResolveInputOutpoint("b", 0)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", txid)
	require.Equal(t, uint32(2), vout)
}

func TestResolveInputOutpointInternalRequiresTxid(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("a"))
	require.NoError(t, g.AddTransaction("b"))
	_, err := g.AddTransactionOutput("a", newOutput(1000))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)
	require.NoError(t, g.Connect("a", 0, "b", 0))

	_, _, err = g.ResolveInputOutpoint("b", 0)
	require.Error(t, err)

	require.NoError(t, g.SetTxid("a", "cafe"))
	txid, vout, err := g.ResolveInputOutpoint("b", 0)
	require.NoError(t, err)
	require.Equal(t, "cafe", txid)
	require.Equal(t, uint32(0), vout)
}

func TestSetOutputValuePropagates(t *testing.T) {
	g := NewTransactionGraph()
	require.NoError(t, g.AddTransaction("a"))
	require.NoError(t, g.AddTransaction("b"))
	_, err := g.AddTransactionOutput("a", newOutput(1000))
	require.NoError(t, err)
	_, err = g.AddTransactionInput("b", InputType{})
	require.NoError(t, err)
	require.NoError(t, g.Connect("a", 0, "b", 0))

	require.NoError(t, g.SetOutputValue("a", 0, 500))

	tx, err := g.GetTransaction("b")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(500), tx.Inputs[0].OutputRef.Value)
}
