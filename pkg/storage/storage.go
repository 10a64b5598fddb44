// Package storage defines the external Storage Backend boundary (spec
// §6) the persistence layer reads and writes through: one opaque
// key/value record per protocol, keyed by its name.
package storage

// Backend is the persistence boundary a Protocol is saved to and loaded
// from. Implementations decide durability, location, and whether values
// are encrypted at rest; pkg/protocol only ever sees bytes in, bytes out.
type Backend interface {
	// Read returns the value for key and true, or nil and false if the
	// key is absent.
	Read(key string) ([]byte, bool, error)

	// Write stores value under key, replacing any prior value.
	Write(key string, value []byte) error
}
