package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltBackendWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.db")

	backend, err := OpenBoltBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	_, ok, err := backend.Read("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, backend.Write("proto-a", []byte("hello")))
	value, ok, err := backend.Read("proto-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), value)

	require.NoError(t, backend.Write("proto-a", []byte("updated")))
	value, ok, err = backend.Read("proto-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("updated"), value)
}

func TestBoltBackendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.db")

	backend, err := OpenBoltBackend(path)
	require.NoError(t, err)
	require.NoError(t, backend.Write("proto-a", []byte("persisted")))
	require.NoError(t, backend.Close())

	reopened, err := OpenBoltBackend(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Read("proto-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), value)
}
