package storage

import (
	"fmt"

	"go.etcd.io/bbolt"
)

const dbFilePermission = 0600

var protocolsBucket = []byte("protocols")

// BoltBackend is a reference Backend implementation over a single bbolt
// database file, opened the way the teacher's compactdb command opens
// one: fixed permissions, a map-type freelist.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBoltBackend opens (creating if needed) a bbolt database at path
// with one bucket holding every protocol record.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt backend %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(protocolsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create protocols bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Read implements Backend.
func (b *BoltBackend) Read(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(protocolsBucket)
		v := bucket.Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, value != nil, nil
}

// Write implements Backend.
func (b *BoltBackend) Write(key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(protocolsBucket)
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}
