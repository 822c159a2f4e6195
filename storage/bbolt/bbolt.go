// Package bbolt provides a BBolt-backed storage repository. A generate run
// started with --state keeps its entity records here so that later revoke
// and crl invocations can resolve signers and targets.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/sslfixture/storage"
	"go.etcd.io/bbolt"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(recordType, recordID string) []byte {
	return []byte(recordType + ":" + recordID)
}

func (s *Store) Put(namespace, recordType, recordID string, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(recordKey(recordType, recordID), data)
	})
}

func (s *Store) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	var record storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
		}
		data := b.Get(recordKey(recordType, recordID))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) Delete(namespace, recordType, recordID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
		}
		key := recordKey(recordType, recordID)
		if b.Get(key) == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return b.Delete(key)
	})
}

// List returns record IDs of the given type in key order.
func (s *Store) List(namespace, recordType string) ([]string, error) {
	var ids []string
	prefix := []byte(recordType + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (s *Store) PutCAS(namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		key := recordKey(recordType, recordID)
		existingData := b.Get(key)

		if expectedVersion == 0 {
			if existingData != nil {
				return storage.ErrCASFailed
			}
		} else {
			if existingData == nil {
				return storage.ErrCASFailed
			}
			var existing storage.Record
			if err := json.Unmarshal(existingData, &existing); err != nil {
				return err
			}
			if existing.Version != expectedVersion {
				return storage.ErrCASFailed
			}
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}
