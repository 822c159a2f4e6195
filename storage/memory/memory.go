// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/sslfixture/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// It is the default backing for a single generate run.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Record)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func (r *Repository) Put(namespace, recordType, recordID string, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(namespace, recordType, recordID, record)
	return nil
}

func (r *Repository) putLocked(namespace, recordType, recordID string, record *storage.Record) {
	if _, ok := r.data[namespace]; !ok {
		r.data[namespace] = make(map[string]*storage.Record)
	}
	r.data[namespace][makeKey(recordType, recordID)] = record.Clone()
}

func (r *Repository) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.data[namespace]
	if !ok {
		return nil, fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	rec, ok := ns[makeKey(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns record IDs of the given type in lexical order.
func (r *Repository) List(namespace, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[namespace] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) PutCAS(namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.data[namespace][makeKey(recordType, recordID)]
	if expectedVersion == 0 {
		if ok {
			return storage.ErrCASFailed
		}
	} else if !ok || existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	r.putLocked(namespace, recordType, recordID, record)
	return nil
}

func (r *Repository) Delete(namespace, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.data[namespace]
	if !ok {
		return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	k := makeKey(recordType, recordID)
	if _, ok := ns[k]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(ns, k)
	return nil
}
