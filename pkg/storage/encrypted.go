package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltLen        = 16
	argon2Time     = 1
	argon2Memory   = 64 * 1024
	argon2Threads  = 4
	argon2KeyBytes = chacha20poly1305.KeySize
)

// EncryptedBackend wraps another Backend with passphrase-based
// authenticated encryption at rest (spec §6's "optional symmetric
// encryption under a caller-supplied passphrase"): every value is stored
// as salt || nonce || ciphertext, with the key derived fresh per value
// via Argon2id so no key ever touches the underlying Backend.
type EncryptedBackend struct {
	inner      Backend
	passphrase []byte
}

// NewEncryptedBackend wraps inner, encrypting every value under
// passphrase before it reaches inner and decrypting on the way back out.
func NewEncryptedBackend(inner Backend, passphrase []byte) *EncryptedBackend {
	return &EncryptedBackend{inner: inner, passphrase: passphrase}
}

// Read implements Backend.
func (e *EncryptedBackend) Read(key string) ([]byte, bool, error) {
	raw, ok, err := e.inner.Read(key)
	if err != nil || !ok {
		return nil, ok, err
	}

	if len(raw) < saltLen {
		return nil, false, fmt.Errorf("decrypt %q: stored value too short", key)
	}
	salt, rest := raw[:saltLen], raw[saltLen:]

	aead, err := e.aead(salt)
	if err != nil {
		return nil, false, err
	}
	if len(rest) < aead.NonceSize() {
		return nil, false, fmt.Errorf("decrypt %q: stored value too short", key)
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decrypt %q: %w", key, err)
	}
	return plaintext, true, nil
}

// Write implements Backend.
func (e *EncryptedBackend) Write(key string, value []byte) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("encrypt %q: generate salt: %w", key, err)
	}

	aead, err := e.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("encrypt %q: generate nonce: %w", key, err)
	}

	ciphertext := aead.Seal(nil, nonce, value, nil)
	stored := append(append(append([]byte{}, salt...), nonce...), ciphertext...)
	return e.inner.Write(key, stored)
}

func (e *EncryptedBackend) aead(salt []byte) (cipher.AEAD, error) {
	derivedKey := argon2.IDKey(e.passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyBytes)
	aead, err := chacha20poly1305.New(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("derive cipher: %w", err)
	}
	return aead, nil
}
