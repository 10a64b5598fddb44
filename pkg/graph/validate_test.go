package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckEmptyScripts(t *testing.T) {
	require.Error(t, CheckEmptyScripts(nil))
	require.NoError(t, CheckEmptyScripts([]*ProtocolScript{{}}))
}

func TestCheckEmptyTransactionName(t *testing.T) {
	require.Error(t, CheckEmptyTransactionName(""))
	require.Error(t, CheckEmptyTransactionName("   "))
	require.NoError(t, CheckEmptyTransactionName("tx1"))
}

func TestCheckEmptyConnectionName(t *testing.T) {
	require.Error(t, CheckEmptyConnectionName(""))
	require.NoError(t, CheckEmptyConnectionName("conn1"))
}

func TestCheckZeroRounds(t *testing.T) {
	require.Error(t, CheckZeroRounds(0))
	require.NoError(t, CheckZeroRounds(1))
}
