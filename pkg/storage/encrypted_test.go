package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
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

func TestEncryptedBackendRoundTrip(t *testing.T) {
	inner := newMemoryBackend()
	enc := NewEncryptedBackend(inner, []byte("correct horse battery staple"))

	require.NoError(t, enc.Write("proto-a", []byte("plaintext payload")))

	// The plaintext must never reach the wrapped backend.
	stored := inner.records["proto-a"]
	require.NotContains(t, string(stored), "plaintext payload")

	value, ok, err := enc.Read("proto-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("plaintext payload"), value)
}

func TestEncryptedBackendWrongPassphraseFails(t *testing.T) {
	inner := newMemoryBackend()
	enc := NewEncryptedBackend(inner, []byte("right-passphrase"))
	require.NoError(t, enc.Write("proto-a", []byte("secret")))

	wrong := NewEncryptedBackend(inner, []byte("wrong-passphrase"))
	_, _, err := wrong.Read("proto-a")
	require.Error(t, err)
}

func TestEncryptedBackendEachWriteUsesFreshSalt(t *testing.T) {
	inner := newMemoryBackend()
	enc := NewEncryptedBackend(inner, []byte("passphrase"))

	require.NoError(t, enc.Write("k", []byte("same plaintext")))
	first := append([]byte(nil), inner.records["k"]...)

	require.NoError(t, enc.Write("k", []byte("same plaintext")))
	second := inner.records["k"]

	require.NotEqual(t, first, second, "re-encrypting identical plaintext must not produce identical ciphertext")
}

func TestEncryptedBackendMissingKey(t *testing.T) {
	inner := newMemoryBackend()
	enc := NewEncryptedBackend(inner, []byte("passphrase"))

	_, ok, err := enc.Read("absent")
	require.NoError(t, err)
	require.False(t, ok)
}
