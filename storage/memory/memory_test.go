package memory

import (
	"errors"
	"testing"

	"github.com/jmcleod/sslfixture/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	namespace := "fixtures"
	recordType := "entity"
	recordID := "ca"
	rec := &storage.Record{Data: []byte("payload"), Version: 1}

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(namespace, recordType, recordID, rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(namespace, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Data) != "payload" || got.Version != 1 {
			t.Errorf("Get returned wrong record: %+v", got)
		}

		// Returned records are clones.
		got.Data[0] = 'X'
		got2, _ := repo.Get(namespace, recordType, recordID)
		if got2.Data[0] == 'X' {
			t.Error("Memory repository should return clones of records")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := repo.Get("nonexistent", recordType, recordID); !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
		if _, err := repo.Get(namespace, recordType, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(namespace, recordType, "b", rec)
		repo.Put(namespace, recordType, "a", rec)
		repo.Put(namespace, "other", "z", rec)
		ids, err := repo.List(namespace, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"a", "b", "ca"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
			}
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		if err := repo.PutCAS(namespace, recordType, "new", 0, rec); err != nil {
			t.Fatalf("PutCAS create failed: %v", err)
		}
		if err := repo.PutCAS(namespace, recordType, "new", 0, rec); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed on duplicate create, got %v", err)
		}
		next := &storage.Record{Data: []byte("v2"), Version: 2}
		if err := repo.PutCAS(namespace, recordType, "new", 1, next); err != nil {
			t.Fatalf("PutCAS update failed: %v", err)
		}
		if err := repo.PutCAS(namespace, recordType, "new", 1, next); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed on stale version, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(namespace, recordType, "a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(namespace, recordType, "a"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete("nonexistent", recordType, "a"); !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
	})
}
