// Package storage provides the persistence abstraction for fixture state:
// entity records and their issuance status, keyed by namespace.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record was ever written to a namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Record is an opaque payload with a monotonically increasing version.
type Record struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Data:    append([]byte(nil), r.Data...),
		Version: r.Version,
	}
}

// Repository defines the interface for record storage.
//
// PutCAS with expectedVersion 0 is create-only; any other value must match
// the stored record's Version.
type Repository interface {
	Put(namespace string, recordType string, recordID string, record *Record) error
	Get(namespace string, recordType string, recordID string) (*Record, error)
	List(namespace string, recordType string) ([]string, error)
	PutCAS(namespace string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(namespace string, recordType string, recordID string) error
}
